package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
)

// defaultNoveltyPreference is the preference of a session with no history.
const defaultNoveltyPreference = 0.5

// SessionRepository keeps the per-session vibe profile and the log of
// queries that shaped it.
type SessionRepository struct {
	backend *Backend
}

var _ storage.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(backend *Backend) (*SessionRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &SessionRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *SessionRepository) Close() error {
	return nil
}

// GetProfile returns storage.ErrNotFound for unknown sessions.
func (r *SessionRepository) GetProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error) {
	if sessionID == "" {
		return nil, storage.ErrSessionIDRequired
	}
	var profile *core.SessionProfile
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		profile, err = readProfile(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, storage.ErrNotFound
	}
	return profile, nil
}

// GetOrCreateProfile returns the stored profile or a fresh neutral one.
// Two callers racing on a new session both end up with the same profile.
func (r *SessionRepository) GetOrCreateProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error) {
	profile, err := r.GetProfile(ctx, sessionID)
	if !errors.Is(err, storage.ErrNotFound) {
		return profile, err
	}

	err = r.backend.update(func(tx *badger.Txn) error {
		existing, err := readProfile(tx, sessionID)
		if err != nil || existing != nil {
			profile = existing
			return err
		}
		now := time.Now().UTC()
		profile = &core.SessionProfile{
			SessionID:         sessionID,
			Vibe:              make(map[string]float64),
			NoveltyPreference: defaultNoveltyPreference,
			InsertedAt:        now,
			UpdatedAt:         now,
		}
		return putProfile(tx, profile)
	})
	if errors.Is(err, badger.ErrConflict) {
		return r.GetProfile(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// SaveProfile stamps UpdatedAt, and InsertedAt on first save.
func (r *SessionRepository) SaveProfile(ctx context.Context, profile *core.SessionProfile) error {
	if profile == nil || profile.SessionID == "" {
		return storage.ErrSessionIDRequired
	}
	profile.UpdatedAt = time.Now().UTC()
	if profile.InsertedAt.IsZero() {
		profile.InsertedAt = profile.UpdatedAt
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return putProfile(tx, profile)
	})
}

func (r *SessionRepository) AppendSignal(ctx context.Context, signal *core.SearchSignal) error {
	if signal == nil || signal.SessionID == "" {
		return storage.ErrSessionIDRequired
	}
	if signal.At.IsZero() {
		signal.At = time.Now().UTC()
	}
	value, err := storage.MarshalSearchSignal(signal)
	if err != nil {
		return err
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Set(makeSignalKey(signal.SessionID, signal.At), value)
	})
}

// RecentSignals returns up to limit signals of a session, newest first.
// A limit of zero or less returns the whole history.
func (r *SessionRepository) RecentSignals(ctx context.Context, sessionID string, limit int) ([]*core.SearchSignal, error) {
	if sessionID == "" {
		return nil, storage.ErrSessionIDRequired
	}
	prefix := makePartialSignalKey(sessionID)
	var signals []*core.SearchSignal
	err := r.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts from the greatest key not above the seek key
		last := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(last); it.Valid(); it.Next() {
			if limit > 0 && len(signals) == limit {
				break
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			signal, err := storage.UnmarshalSearchSignal(raw)
			if err != nil {
				return err
			}
			signals = append(signals, signal)
		}
		return nil
	})
	return signals, err
}

// readProfile returns nil, nil when the session has no profile.
func readProfile(tx *badger.Txn, sessionID string) (*core.SessionProfile, error) {
	item, err := tx.Get(makeSessionKey(sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalSessionProfile(raw)
}

func putProfile(tx *badger.Txn, profile *core.SessionProfile) error {
	value, err := storage.MarshalSessionProfile(profile)
	if err != nil {
		return err
	}
	return tx.Set(makeSessionKey(profile.SessionID), value)
}
