// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package ceremony

import (
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory implementation of UserStore.
// This is intended for development and testing only.
type MemoryUserStore struct {
	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]*User
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:   make(map[string]*User),
		byName: make(map[string]*User),
	}
}

// GetByID retrieves a user by their handle.
func (s *MemoryUserStore) GetByID(ctx context.Context, userID []byte) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[hex.EncodeToString(userID)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByName retrieves a user by their account name.
func (s *MemoryUserStore) GetByName(ctx context.Context, name string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byName[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Create creates a new user with the given name and display name.
func (s *MemoryUserStore) Create(ctx context.Context, name, displayName string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return nil, ErrUserAlreadyExists
	}

	user := &User{
		ID:          GenerateUserID(name),
		Name:        name,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	s.byID[hex.EncodeToString(user.ID)] = user
	s.byName[name] = user

	return user, nil
}

// Delete removes a user by their handle.
func (s *MemoryUserStore) Delete(ctx context.Context, userID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(userID)
	user, ok := s.byID[key]
	if !ok {
		return ErrUserNotFound
	}

	delete(s.byID, key)
	delete(s.byName, user.Name)

	return nil
}

// Count returns the number of users in the store.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// This is intended for development and testing only.
type MemoryChallengeStore struct {
	mu       sync.Mutex
	sessions map[string]*ChallengeSession
	now      func() time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		sessions: make(map[string]*ChallengeSession),
		now:      time.Now,
	}
}

// Issue stores a pending challenge session, replacing any previous
// challenge under the same session ID.
func (s *MemoryChallengeStore) Issue(ctx context.Context, session *ChallengeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

// Consume atomically retrieves and removes a pending challenge.
func (s *MemoryChallengeStore) Consume(ctx context.Context, sessionID string) (*ChallengeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrChallengeMissing
	}
	delete(s.sessions, sessionID)

	if session.Expired(s.now()) {
		return nil, ErrChallengeExpired
	}
	return session, nil
}

// Count returns the number of pending challenges in the store.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes expired challenges and returns how many were removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]string),
	}
}

// Save stores a new credential. Credential IDs are globally unique.
func (s *MemoryCredentialStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; ok {
		return ErrCredentialExists
	}

	userKey := hex.EncodeToString(cred.UserID)
	stored := *cred
	s.byID[credKey] = &stored
	s.byUserID[userKey] = append(s.byUserID[userKey], credKey)

	return nil
}

// GetByID retrieves a credential by its ID.
func (s *MemoryCredentialStore) GetByID(ctx context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrUnknownCredential
	}

	// Return a copy so callers cannot mutate stored state.
	out := *cred
	return &out, nil
}

// GetByUserID retrieves all credentials for a user.
func (s *MemoryCredentialStore) GetByUserID(ctx context.Context, userID []byte) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byUserID[hex.EncodeToString(userID)]
	result := make([]*Credential, 0, len(keys))
	for _, k := range keys {
		if cred, ok := s.byID[k]; ok {
			out := *cred
			result = append(result, &out)
		}
	}
	return result, nil
}

// UpdateSignCount updates the signature counter with compare-and-swap
// semantics.
func (s *MemoryCredentialStore) UpdateSignCount(ctx context.Context, credID []byte, prev, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrUnknownCredential
	}
	if cred.SignCount != prev {
		return ErrSignCountStale
	}

	cred.SignCount = next
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// SetCloneWarning marks a credential as having shown a counter regression.
func (s *MemoryCredentialStore) SetCloneWarning(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrUnknownCredential
	}
	cred.CloneWarning = true
	return nil
}

// Delete removes a credential by its ID.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(credID)
	cred, ok := s.byID[credKey]
	if !ok {
		return ErrUnknownCredential
	}

	delete(s.byID, credKey)

	userKey := hex.EncodeToString(cred.UserID)
	keys := s.byUserID[userKey]
	for i, k := range keys {
		if k == credKey {
			s.byUserID[userKey] = append(keys[:i], keys[i+1:]...)
			break
		}
	}

	return nil
}

// DeleteByUserID removes all credentials for a user.
func (s *MemoryCredentialStore) DeleteByUserID(ctx context.Context, userID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userKey := hex.EncodeToString(userID)
	for _, k := range s.byUserID[userKey] {
		delete(s.byID, k)
	}
	delete(s.byUserID, userKey)

	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
