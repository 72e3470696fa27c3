package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"parley/log"
)

const DefaultProfile = "default"

type Options struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir      string
	InMemory bool
	// Profile namespaces the stored instructions.
	Profile string
}

// Instructions persists the agent's system instructions per profile.
type Instructions struct {
	db      *badger.DB
	profile string
}

func Open(opts Options) (*Instructions, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Dir is required for on-disk mode")
	}
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open instruction store: %w", err)
	}
	return &Instructions{db: db, profile: opts.Profile}, nil
}

func (s *Instructions) key() []byte {
	return []byte("instructions/" + s.profile)
}

// Get returns the stored instructions. found is false when none were saved.
func (s *Instructions) Get(ctx context.Context) (text string, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key())
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		text = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read instructions: %w", err)
	}
	return text, true, nil
}

func (s *Instructions) Set(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(), []byte(text))
	})
	if err != nil {
		return fmt.Errorf("write instructions: %w", err)
	}
	return nil
}

// Load returns the stored instructions, seeding the store with fallback
// the first time.
func (s *Instructions) Load(ctx context.Context, fallback string) (string, error) {
	text, found, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	if found {
		return text, nil
	}
	if err := s.Set(ctx, fallback); err != nil {
		return "", err
	}
	return fallback, nil
}

func (s *Instructions) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's warnings and errors to the diagnostics log.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any)   { log.Errorf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...any) { log.Warnf("badger: "+f, v...) }
func (badgerLogger) Infof(string, ...any)        {}
func (badgerLogger) Debugf(string, ...any)       {}
