package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/contest/internal/config"
)

// BadgerConfig configures the on-disk progress cache.
type BadgerConfig struct {
	// Dir holds the BadgerDB files. Ignored when InMemory is true.
	Dir string

	// Profile scopes the keys, so several players can share one directory.
	Profile string

	InMemory   bool
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db      *badger.DB
	profile string
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (creating if needed) the progress cache.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("progress: dir is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create progress directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open progress cache: %w", err)
	}
	return &Badger{db: db, profile: cfg.Profile}, nil
}

// Close releases the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) get(key string) (config.StageSet, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(b.profile, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return config.StageSet{}, fmt.Errorf("read %s: %w", key, err)
	}
	return decodeSet(data), nil
}

func (b *Badger) set(key string, s config.StageSet) error {
	data, err := encodeSet(s)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(b.profile, key), data)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (b *Badger) SolvedStages(context.Context) (config.StageSet, error) {
	return b.get(KeySolvedStages)
}

func (b *Badger) SetSolvedStages(_ context.Context, s config.StageSet) error {
	return b.set(KeySolvedStages, s)
}

func (b *Badger) FirstRiddleSolved(context.Context) (config.StageSet, error) {
	return b.get(KeyFirstRiddleSolved)
}

func (b *Badger) SetFirstRiddleSolved(_ context.Context, s config.StageSet) error {
	return b.set(KeyFirstRiddleSolved, s)
}

func (b *Badger) Clear(context.Context) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{KeySolvedStages, KeyFirstRiddleSolved} {
			if err := txn.Delete(profileKey(b.profile, key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}
