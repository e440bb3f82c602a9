package coordinator

import (
	"github.com/karstvig/focusd/pagewatch"
)

// Sink returns a pagewatch.Sink that feeds this Coordinator's gating
// pipeline. Wire it into pagewatch.New() to connect observation to
// classification.
//
// Usage:
//
//	c, _ := coordinator.New(cfg, logger)
//	w := pagewatch.New(pwCfg, logger, c.Sink())
func (c *Coordinator) Sink() pagewatch.Sink {
	return pagewatch.NewCallbackSink(
		c.HandleSnapshot,
		c.AddToWhitelist,
	)
}
