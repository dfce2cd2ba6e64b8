// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const sessionKeyPrefix = "session:"

// BadgerSessionStore persists sessions in BadgerDB so logins survive
// process restarts. Entries carry a Badger TTL matching the session
// expiry, so the store self-cleans even without CleanupExpired runs.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore opens a Badger-backed session store at the
// given path.
func NewBadgerSessionStore(path string) (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("auth: cannot open session store: %w", err)
	}
	return &BadgerSessionStore{db: db}, nil
}

func (s *BadgerSessionStore) Create(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("auth: marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+session.ID), data).
			WithTTL(time.Until(session.ExpiresAt))
		return txn.SetEntry(entry)
	})
}

func (s *BadgerSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("auth: get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &session, nil
}

func (s *BadgerSessionStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *BadgerSessionStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.ExpiresAt = newExpiry
	return s.Create(ctx, session)
}

// CleanupExpired is a no-op for Badger: entries expire via their TTL.
func (s *BadgerSessionStore) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *BadgerSessionStore) Close() error {
	return s.db.Close()
}
