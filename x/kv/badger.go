//go:build !(rp2040 || rp2350)

package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

type BadgerOptions struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	// Logger receives badger's warnings and errors. Nil uses slog.Default.
	Logger *slog.Logger
}

func NewBadger(bopts BadgerOptions) (*Badger, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("kv: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(bopts.Dir)
	if bopts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	l := bopts.Logger
	if l == nil {
		l = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{l.With(slog.String("component", "kv"))})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.encode())
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.encode(), value)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.encode())
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) BatchSet(_ context.Context, entries []Entry) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set(e.Key.encode(), e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Close() error { return b.db.Close() }

// slogAdapter routes badger's logger to slog, dropping info and debug.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	a.l.Error("kv:badger", "msg", fmt.Sprintf(f, v...))
}
func (a slogAdapter) Warningf(f string, v ...interface{}) {
	a.l.Warn("kv:badger", "msg", fmt.Sprintf(f, v...))
}
func (slogAdapter) Infof(string, ...interface{})  {}
func (slogAdapter) Debugf(string, ...interface{}) {}
