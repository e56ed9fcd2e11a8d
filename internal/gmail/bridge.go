package gmail

import (
	"context"
	"time"

	"transitdocs/internal/analysis"
	"transitdocs/internal/config"
)

// Popup geometry the front end should use for the authorization window.
// Returned alongside the auth URL so every client sizes it the same way.
const (
	PopupWidth  = 600
	PopupHeight = 700
)

// Bridge coordinates the Gmail import handshake: hand the user an
// authorization URL, wait for the external flow to finish, then trigger the
// server-side import with the retained state token.
//
// The wait is a timed poll with two exit edges — detected completion and a
// hard ceiling — both feeding the same downstream import call. The import is
// attempted even when authorization was never observed to complete; an
// abandoned flow simply yields an import the analysis backend rejects.
type Bridge struct {
	client   analysis.Client
	registry Registry
	poll     time.Duration
	ceiling  time.Duration
}

// NewBridge builds a bridge with the configured poll interval and ceiling.
func NewBridge(client analysis.Client, registry Registry, cfg config.GmailConfig) *Bridge {
	poll := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = 700 * time.Millisecond
	}
	ceiling := time.Duration(cfg.WaitCeilingSec) * time.Second
	if ceiling <= 0 {
		ceiling = 120 * time.Second
	}
	return &Bridge{client: client, registry: registry, poll: poll, ceiling: ceiling}
}

// Opener presents an authorization URL to the user agent. In production this
// is the HTTP layer pushing the URL to the browser; tests substitute a stub.
type Opener interface {
	Open(ctx context.Context, authURL string) error
}

// AuthURL retrieves the authorization URL and state token for a user.
func (b *Bridge) AuthURL(ctx context.Context, userID string) (*analysis.AuthURL, error) {
	return b.client.GmailAuthURL(ctx, userID)
}

// Complete marks an OAuth state as finished. Called by the callback route.
func (b *Bridge) Complete(ctx context.Context, state string) error {
	return b.registry.MarkComplete(ctx, state)
}

// Authorize runs the whole handshake for a user: fetch the auth URL, present
// it via the opener, wait, then import. Returns the import result.
func (b *Bridge) Authorize(ctx context.Context, userID string, opener Opener) (*analysis.ImportResult, error) {
	auth, err := b.client.GmailAuthURL(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := opener.Open(ctx, auth.URL); err != nil {
		return nil, err
	}
	return b.WaitAndImport(ctx, auth.State)
}

// WaitAndImport blocks until the state is marked complete or the ceiling
// elapses, then triggers the import exactly once with the default query and
// limit.
func (b *Bridge) WaitAndImport(ctx context.Context, state string) (*analysis.ImportResult, error) {
	b.wait(ctx, state)
	return b.client.ImportFromGmail(ctx, state, analysis.DefaultImportQuery, analysis.DefaultImportMax)
}

// wait polls the registry until completion is detected, the ceiling elapses,
// or the context is cancelled. The ticker and timer are released on every
// edge.
func (b *Bridge) wait(ctx context.Context, state string) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(b.ceiling)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			done, err := b.registry.IsComplete(ctx, state)
			if err == nil && done {
				return
			}
			// Registry errors are transient; keep polling until the ceiling.
		}
	}
}
