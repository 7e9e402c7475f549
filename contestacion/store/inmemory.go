// Package store provides session persistence for the guided response flow.
// The in-memory store is for tests and single-process deployments; the Mongo
// store is the production backend.
package store

import (
	"context"
	"sync"

	"github.com/sweetpotato0/lexia/contestacion"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// InMemoryStore keeps sessions in a mutex-guarded map.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]contestacion.Session
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]contestacion.Session),
	}
}

// Insert stores a new session.
func (s *InMemoryStore) Insert(_ context.Context, sess *contestacion.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return lexiaerrors.ErrAlreadyExists
	}
	s.sessions[sess.ID] = snapshot(sess)
	return nil
}

// Get returns a copy of the stored session.
func (s *InMemoryStore) Get(_ context.Context, id string) (*contestacion.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, lexiaerrors.ErrNotFound
	}
	out := stored
	out.State = stored.State.Clone()
	return &out, nil
}

// Update persists the session if its version still matches the stored one,
// then bumps the version on both the store and the caller's copy.
func (s *InMemoryStore) Update(_ context.Context, sess *contestacion.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID]
	if !ok {
		return lexiaerrors.ErrNotFound
	}
	if stored.Version != sess.Version {
		return contestacion.ErrVersionConflict
	}

	sess.Version++
	s.sessions[sess.ID] = snapshot(sess)
	return nil
}

func snapshot(sess *contestacion.Session) contestacion.Session {
	out := *sess
	out.State = sess.State.Clone()
	return out
}
