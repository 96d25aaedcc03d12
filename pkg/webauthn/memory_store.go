// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// MemoryStore is an in-memory CredentialStore for development and testing.
// Data does not survive a restart.
//
// Each username has its own mutex, so ceremonies for different users run in
// parallel while operations on one user are serialized. The store-level
// mutex only guards the maps themselves and is never held across a user
// operation.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*Account          // username -> account
	credOwner  map[string]string            // hex(credential ID) -> username
	challenges map[string]*PendingChallenge // username -> challenge, one slot per user
	userLocks  map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*Account),
		credOwner:  make(map[string]string),
		challenges: make(map[string]*PendingChallenge),
		userLocks:  make(map[string]*sync.Mutex),
	}
}

// lockUser acquires the per-user mutex, creating it on first use.
func (s *MemoryStore) lockUser(username string) *sync.Mutex {
	s.mu.Lock()
	lk, ok := s.userLocks[username]
	if !ok {
		lk = &sync.Mutex{}
		s.userLocks[username] = lk
	}
	s.mu.Unlock()
	lk.Lock()
	return lk
}

// GetAccount retrieves an account by username.
func (s *MemoryStore) GetAccount(ctx context.Context, username string) (*Account, error) {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.RLock()
	account, ok := s.accounts[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneAccount(account), nil
}

// EnsureAccount retrieves or creates the account for username.
func (s *MemoryStore) EnsureAccount(ctx context.Context, username string) (*Account, error) {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.Lock()
	account, ok := s.accounts[username]
	if !ok {
		account = NewAccount(username)
		s.accounts[username] = account
	}
	s.mu.Unlock()
	return cloneAccount(account), nil
}

// AddCredential attaches a credential to an existing account. Credential IDs
// are checked globally, not just within the account.
func (s *MemoryStore) AddCredential(ctx context.Context, username string, cred *Credential) error {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[username]
	if !ok {
		return ErrUserNotFound
	}

	key := hex.EncodeToString(cred.ID)
	if _, taken := s.credOwner[key]; taken {
		return ErrCredentialExists
	}

	account.Credentials = append(account.Credentials, cloneCredential(cred))
	s.credOwner[key] = username
	return nil
}

// UpdateSignCount advances the stored counter, requiring strict growth.
// A counter that fails to advance flags the credential and leaves the stored
// value untouched.
func (s *MemoryStore) UpdateSignCount(ctx context.Context, username string, credentialID []byte, newCount uint32) error {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[username]
	if !ok {
		return ErrUserNotFound
	}

	cred := account.Credential(credentialID)
	if cred == nil {
		return ErrCredentialNotFound
	}

	if newCount <= cred.SignCount {
		cred.CloneFlagged = true
		return ErrCloneDetected
	}

	cred.SignCount = newCount
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// PutChallenge stores the pending challenge for username. A user holds at
// most one pending challenge: a new issuance replaces the previous one
// whatever ceremony it belonged to.
func (s *MemoryStore) PutChallenge(ctx context.Context, username string, challenge *PendingChallenge) error {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *challenge
	s.challenges[username] = &copied
	return nil
}

// ConsumeChallenge atomically retrieves and removes the pending challenge.
// A challenge stored for a different ceremony is reported as absent and stays
// in place; an expired one is removed and reported as absent.
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, username string, ceremony CeremonyType) (*PendingChallenge, error) {
	lk := s.lockUser(username)
	defer lk.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[username]
	if !ok {
		return nil, ErrNoActiveCeremony
	}
	if challenge.Ceremony != ceremony {
		return nil, ErrNoActiveCeremony
	}
	delete(s.challenges, username)

	if challenge.Expired(time.Now()) {
		return nil, ErrNoActiveCeremony
	}
	return challenge, nil
}

// SweepChallenges removes expired challenges and returns how many went.
// Lock entries for usernames with no remaining state are reaped in the same
// pass so churning usernames don't grow the lock map without bound.
func (s *MemoryStore) SweepChallenges(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, challenge := range s.challenges {
		if challenge.Expired(now) {
			delete(s.challenges, key)
			removed++
		}
	}

	// Dropping an idle lock is safe: the data mutations it orders all happen
	// under mu, which this loop holds.
	for username, lk := range s.userLocks {
		if _, ok := s.accounts[username]; ok {
			continue
		}
		if _, ok := s.challenges[username]; ok {
			continue
		}
		if lk.TryLock() {
			lk.Unlock()
			delete(s.userLocks, username)
		}
	}
	return removed, nil
}

// CountAccounts returns the number of stored accounts.
func (s *MemoryStore) CountAccounts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// CountChallenges returns the number of stored pending challenges, expired
// ones included.
func (s *MemoryStore) CountChallenges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.challenges)
}

// Clear removes all accounts, credentials, challenges, and per-user locks.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*Account)
	s.credOwner = make(map[string]string)
	s.challenges = make(map[string]*PendingChallenge)
	s.userLocks = make(map[string]*sync.Mutex)
}

// cloneAccount returns a deep copy so callers never share memory with the
// store's internal state.
func cloneAccount(a *Account) *Account {
	copied := *a
	copied.Credentials = make([]*Credential, len(a.Credentials))
	for i, c := range a.Credentials {
		copied.Credentials[i] = cloneCredential(c)
	}
	return &copied
}

func cloneCredential(c *Credential) *Credential {
	copied := *c
	copied.ID = append([]byte(nil), c.ID...)
	copied.UserID = append([]byte(nil), c.UserID...)
	copied.PublicKey = append([]byte(nil), c.PublicKey...)
	copied.AAGUID = append([]byte(nil), c.AAGUID...)
	copied.Transports = append(copied.Transports[:0:0], c.Transports...)
	return &copied
}
