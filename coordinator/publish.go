package coordinator

import "context"

// Publisher receives every assessment the coordinator finalizes. The
// WebSocket hub is the main implementation; tests use PublishFunc.
type Publisher interface {
	Publish(ctx context.Context, res Result)
}

// PublishFunc adapts a function to Publisher.
type PublishFunc func(ctx context.Context, res Result)

func (f PublishFunc) Publish(ctx context.Context, res Result) { f(ctx, res) }

// PageControl is the slice of pagewatch the coordinator drives:
// rendering verdicts and asking for re-checks. *pagewatch.Watcher
// satisfies it.
type PageControl interface {
	ActiveTab() string
	SetBadge(ctx context.Context, tabID, state string) error
	ShowOffFocusPrompt(ctx context.Context, tabID, focus, backURL string) error
	RequestRecheck(tabID string) error
}
