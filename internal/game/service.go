package game

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"
)

// Store is the persistence contract the engine runs against: a document
// store keyed by game id with atomic read-modify-write updates and
// change-notification subscriptions. Update executes exactly one
// read-validate-mutate-commit attempt against the latest committed record
// and reports ErrTransientConflict when it loses a race, leaving retries to
// the service layer.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, apply func(*Record) error) (*Record, error)
	ListLobby(ctx context.Context) ([]*Record, error)
	Watch(ctx context.Context, id string) (<-chan *Record, error)
}

type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, log: logger}
}

// CreateGame allocates a fresh session with the creator as host and sole
// player. Identifier collisions are retried with a new code a few times
// before surfacing ErrAllocationConflict.
func (s *Service) CreateGame(ctx context.Context, hostID, hostName string) (*Record, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := generateGameCode()
		if err != nil {
			return nil, err
		}
		r := NewRecord(id, hostID, hostName)
		err = s.store.Create(ctx, r)
		if err == nil {
			s.log.Info("game created", "game_id", id, "host_id", hostID)
			return r, nil
		}
		if !errors.Is(err, ErrAllocationConflict) {
			return nil, err
		}
		s.log.Warn("game code collision, regenerating", "game_id", id)
	}
	return nil, ErrAllocationConflict
}

// JoinGame seats a player in a lobby. Re-joining with the same player id is
// a no-op, and two players joining at once both keep their seats because
// the append happens inside the store transaction.
func (s *Service) JoinGame(ctx context.Context, gameID, playerID, name string) (*Record, error) {
	return s.applyTx(ctx, gameID, func(r *Record) error {
		return r.join(playerID, name)
	})
}

// StartGame moves a lobby into its first stock round. Only the host may
// start; the check runs server-side inside the transaction.
func (s *Service) StartGame(ctx context.Context, gameID, actorID string) (*Record, error) {
	return s.applyTx(ctx, gameID, func(r *Record) error {
		return r.start(actorID)
	})
}

// Submit applies one typed game action on behalf of actorID.
func (s *Service) Submit(ctx context.Context, gameID, actorID string, action Action) (*Record, error) {
	return s.applyTx(ctx, gameID, func(r *Record) error {
		return action.apply(r, actorID)
	})
}

func (s *Service) Game(ctx context.Context, gameID string) (*Record, error) {
	return s.store.Get(ctx, gameID)
}

// LobbyGames lists sessions still waiting for players.
func (s *Service) LobbyGames(ctx context.Context) ([]*Record, error) {
	return s.store.ListLobby(ctx)
}

// Watch streams the latest committed record after every change until ctx is
// done. Slow consumers may skip intermediate states but always converge on
// the newest commit.
func (s *Service) Watch(ctx context.Context, gameID string) (<-chan *Record, error) {
	return s.store.Watch(ctx, gameID)
}

// applyTx drives one mutation through the store with bounded retries on
// transient conflicts. Precondition failures are final and surface as-is;
// only lost races are retried, and exhaustion reports ErrTxConflict rather
// than silently dropping the caller's intent.
func (s *Service) applyTx(ctx context.Context, gameID string, fn func(*Record) error) (*Record, error) {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		r, err := s.store.Update(ctx, gameID, fn)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrTransientConflict) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return nil, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	s.log.Warn("mutation retries exhausted", "game_id", gameID)
	return nil, ErrTxConflict
}

// generateGameCode returns a short shareable code. The alphabet drops the
// glyphs players misread over voice chat (0/O, 1/I).
func generateGameCode() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
