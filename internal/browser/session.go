package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/identity"
)

// Session is one isolated browsing context bound to one identity. It belongs
// to a single call and must be handed back with Pool.Release.
type Session struct {
	ID       string
	Identity identity.Identity
	Page     Page
	// Seeded reports whether the session started from persisted state.
	Seeded    bool
	CreatedAt time.Time

	origin string
	src    stateSource
	close  func() error
	logger *slog.Logger
}

// SaveState persists the session's cookies and the engine origin's
// localStorage so the next session can look like a returning visitor.
func (s *Session) SaveState(ctx context.Context, store *StateStore) error {
	if store == nil || store.Path() == "" || s.src == nil {
		return nil
	}

	cookies, err := s.src.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("browser: save state: %w", err)
	}
	st := &StorageState{Cookies: cookies}

	origin, items, err := s.src.LocalStorage(ctx)
	switch {
	case err != nil:
		s.logger.Debug("localStorage unavailable", slog.String("session", s.ID), slog.String("error", err.Error()))
	case s.origin == "" || origin == s.origin:
		st.Origins = []OriginState{{Origin: origin, LocalStorage: items}}
	}

	if err := store.Save(st); err != nil {
		return err
	}
	s.logger.Debug("storage state saved",
		slog.String("session", s.ID),
		slog.Int("cookies", len(st.Cookies)),
		slog.String("path", store.Path()),
	)
	return nil
}
