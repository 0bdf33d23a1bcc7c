package cli

import (
	"context"
	"errors"
	"time"

	"github.com/gosuda/boardsync/internal/board"
	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/protocol"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/session"
)

var errNoCredentials = errors.New("no credentials: set BOARDSYNC_TOKEN or the BOARDSYNC_OAUTH_* variables")

// credentials resolves the configured token source and fetches one token.
func credentials(ctx context.Context, cfg *config.Config) (session.Source, string, error) {
	src := cfg.TokenSource(ctx)
	if src == nil {
		return nil, "", errNoCredentials
	}
	token, err := src.Token()
	if err != nil {
		return nil, "", err
	}
	return src, token, nil
}

// sessionHooks layer command-specific behavior over the reconciler's
// event handling.
type sessionHooks struct {
	onChange      func()
	onState       func(realtime.State)
	onTaskUpdated func(protocol.TaskUpdated)
	onTaskCreated func(protocol.TaskCreated)
}

// syncSession is a manager wired to a reconciler, the standard shape
// for every live command.
type syncSession struct {
	mgr *realtime.Manager
	rec *board.Reconciler
}

func newSyncSession(cfg *config.Config, hooks sessionHooks) *syncSession {
	var mgr *realtime.Manager
	rec := board.NewReconciler(board.SenderFunc(func(m protocol.ClientMessage) { mgr.Send(m) }), hooks.onChange)

	handlers := realtime.Handlers{
		OnBoardState:    rec.OnBoardState,
		OnTaskUpdated:   rec.OnTaskUpdated,
		OnTaskCreated:   rec.OnTaskCreated,
		OnTaskDeleted:   rec.OnTaskDeleted,
		OnSuggestionNew: rec.OnSuggestionNew,
		OnStateChange:   hooks.onState,
	}
	if hooks.onTaskUpdated != nil {
		handlers.OnTaskUpdated = func(m protocol.TaskUpdated) {
			rec.OnTaskUpdated(m)
			hooks.onTaskUpdated(m)
		}
	}
	if hooks.onTaskCreated != nil {
		handlers.OnTaskCreated = func(m protocol.TaskCreated) {
			rec.OnTaskCreated(m)
			hooks.onTaskCreated(m)
		}
	}

	mgr = realtime.NewManager(realtime.Config{
		BaseURL:           cfg.API.BaseURL,
		HeartbeatInterval: cfg.Sync.HeartbeatInterval,
		DialTimeout:       cfg.Sync.DialTimeout,
		Backoff:           cfg.Sync.Backoff(),
	}, handlers)

	return &syncSession{mgr: mgr, rec: rec}
}

// waitFor polls cond until it holds or ctx expires.
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
