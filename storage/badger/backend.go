package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/wayfinder/storage"
)

// DefaultGCDiscardRatio is the fraction of stale data a value log file must
// hold before CollectGarbage rewrites it.
const DefaultGCDiscardRatio = 0.5

// Backend owns the BadgerDB handle shared by the place, session and
// checkpoint repositories.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// slogBridge routes badger's printf-style logging into slog. Badger is
// chatty at info level, so info is demoted to debug.
type slogBridge struct {
	logger *slog.Logger
}

var _ badger.Logger = slogBridge{}

func (s slogBridge) Errorf(format string, args ...any) { s.emit(slog.LevelError, format, args) }
func (s slogBridge) Warningf(format string, args ...any) { s.emit(slog.LevelWarn, format, args) }
func (s slogBridge) Infof(format string, args ...any) { s.emit(slog.LevelDebug, format, args) }
func (s slogBridge) Debugf(format string, args ...any) { s.emit(slog.LevelDebug, format, args) }

func (s slogBridge) emit(level slog.Level, format string, args []any) {
	s.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// OpenBackend opens the place database. With inMemory set, path is ignored
// and nothing touches disk; otherwise path is created if missing and must be
// a directory. A nil logger uses slog.Default().
func OpenBackend(path string, inMemory bool, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badger.DefaultOptions("").WithInMemory(true)
	if !inMemory {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = slogBridge{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening place database: %w", err)
	}
	logger.Debug("place database open", "path", path, "in_memory", inMemory)
	return &Backend{db: db, logger: logger}, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// Close flushes and closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn inside a transaction that is discarded when fn returns.
// Writers must call tx.Commit themselves.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// view runs fn in a read-only transaction.
func (b *Backend) view(fn func(tx *badger.Txn) error) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.View(fn)
}

// update runs fn in a read-write transaction and commits it if fn succeeds.
func (b *Backend) update(fn func(tx *badger.Txn) error) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.Update(fn)
}

// CollectGarbage rewrites value log files until no file holds more than
// discardRatio stale data, returning the number of rewrites. A bulk reindex
// leaves every rewritten place behind in the value log, so callers run this
// afterwards. In-memory databases have no value log and report zero.
func (b *Backend) CollectGarbage(discardRatio float64) (int, error) {
	if b.db.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = DefaultGCDiscardRatio
	}

	lsmBefore, vlogBefore := b.db.Size()
	rewrites := 0
	for {
		err := b.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return rewrites, err
		}
		rewrites++
	}
	if rewrites > 0 {
		lsm, vlog := b.db.Size()
		b.logger.Info("value log compacted",
			"rewrites", rewrites,
			"lsm_bytes", lsm, "lsm_before", lsmBefore,
			"vlog_bytes", vlog, "vlog_before", vlogBefore)
	}
	return rewrites, nil
}

// scanPrefix calls fn for every key with the given prefix, in key order,
// until fn returns false or an error.
func scanPrefix(tx *badger.Txn, prefix []byte, values bool, fn func(item *badger.Item) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.Valid(); it.Next() {
		more, err := fn(it.Item())
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func hasPrefix(s, prefix []byte) bool {
	return len(s) >= len(prefix) && string(s[:len(prefix)]) == string(prefix)
}
