package coordinator

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/karstvig/focusd/kit"
)

// RegisterMCP registers the session tools on an MCP server, so an
// assistant can drive focus sessions alongside the HTTP API.
func (c *Coordinator) RegisterMCP(srv *mcp.Server) {
	c.registerSessionStartTool(srv)
	c.registerSessionStatusTool(srv)
	c.registerSessionPauseTool(srv)
	c.registerSessionResumeTool(srv)
	c.registerSessionEndTool(srv)
	c.registerWhitelistAddTool(srv)
	c.registerWhitelistListTool(srv)
	c.registerLimitResetTool(srv)
	c.registerDailyFocusTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

type emptyRequest struct{}

// --- session_start ---

type sessionStartRequest struct {
	Focus string `json:"focus"`
}

func (c *Coordinator) registerSessionStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_session_start",
		Description: "Start a focus session. Pages visited while it runs are classified against the focus.",
		InputSchema: inputSchema(map[string]any{
			"focus": map[string]any{"type": "string", "description": "What the session is about, e.g. 'writing the quarterly report'"},
		}, []string{"focus"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sessionStartRequest)
		return c.StartSession(ctx, r.Focus)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[sessionStartRequest])
}

// --- session_status ---

func (c *Coordinator) registerSessionStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_session_status",
		Description: "Return the live focus session: focus text, state, accumulated focus time.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.Session(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

// --- session_pause / session_resume / session_end ---

func (c *Coordinator) registerSessionPauseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_session_pause",
		Description: "Pause the live focus session. Focus time stops accumulating.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.PauseSession(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

func (c *Coordinator) registerSessionResumeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_session_resume",
		Description: "Resume a paused focus session.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.ResumeSession(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

func (c *Coordinator) registerSessionEndTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_session_end",
		Description: "End the live focus session and credit its time to the daily ledger.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.EndSession(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

// --- whitelist ---

type whitelistAddRequest struct {
	URL string `json:"url"`
}

func (c *Coordinator) registerWhitelistAddTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_whitelist_add",
		Description: "Whitelist an exact page URL, or a bare host to cover a whole site, so it is always Relevant without a classification call.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Exact page URL or bare host to whitelist"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*whitelistAddRequest)
		if err := c.AddToWhitelist(ctx, r.URL); err != nil {
			return nil, err
		}
		return map[string]string{"status": "whitelisted"}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[whitelistAddRequest])
}

func (c *Coordinator) registerWhitelistListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_whitelist_list",
		Description: "List all whitelist entries.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.Whitelist(ctx)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

// --- limit_reset ---

func (c *Coordinator) registerLimitResetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_limit_reset",
		Description: "Clear the classification quota latch after the service limit resets.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		c.ResetLimit()
		return map[string]string{"status": "reset"}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[emptyRequest])
}

// --- daily focus ---

type dailyFocusRequest struct {
	FromDay string `json:"from_day,omitempty"`
}

func (c *Coordinator) registerDailyFocusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "focusd_daily_focus",
		Description: "Return daily focus-time totals, optionally from a given day (YYYY-MM-DD) onward.",
		InputSchema: inputSchema(map[string]any{
			"from_day": map[string]any{"type": "string", "description": "Earliest day to include, YYYY-MM-DD. Defaults to today."},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*dailyFocusRequest)
		from := r.FromDay
		if from == "" {
			from = todayString()
		}
		return c.DailyFocusSince(ctx, from)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[dailyFocusRequest])
}
