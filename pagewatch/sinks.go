package pagewatch

import (
	"context"

	"github.com/karstvig/focusd/pagewatch/snapshot"
)

// Sink receives the watcher's output: settled page snapshots and the
// user's whitelist requests from the off-focus prompt.
type Sink interface {
	SendSnapshot(ctx context.Context, snap snapshot.Snapshot) error
	RequestWhitelist(ctx context.Context, rawURL string) error
	Close() error
}

// SnapshotFunc handles one settled snapshot.
type SnapshotFunc func(ctx context.Context, snap snapshot.Snapshot) error

// WhitelistFunc handles a whitelist request for a URL's host.
type WhitelistFunc func(ctx context.Context, rawURL string) error

// NewCallbackSink wires the watcher to in-process consumers with zero
// serialisation. Nil callbacks are no-ops.
func NewCallbackSink(onSnapshot SnapshotFunc, onWhitelist WhitelistFunc) Sink {
	return &callbackSink{onSnapshot: onSnapshot, onWhitelist: onWhitelist}
}

type callbackSink struct {
	onSnapshot  SnapshotFunc
	onWhitelist WhitelistFunc
}

func (s *callbackSink) SendSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	if s.onSnapshot == nil {
		return nil
	}
	return s.onSnapshot(ctx, snap)
}

func (s *callbackSink) RequestWhitelist(ctx context.Context, rawURL string) error {
	if s.onWhitelist == nil {
		return nil
	}
	return s.onWhitelist(ctx, rawURL)
}

func (s *callbackSink) Close() error { return nil }
