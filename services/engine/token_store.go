package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTokenNotFound reports a token the store has never issued, or
	// one presented by a different machine than it was issued to.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired reports a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

const defaultTokenTTL = 30 * time.Minute

type tokenEntry struct {
	MachineID string
	Expires   time.Time
}

// tokenStore tracks issued session tokens in memory with lazy expiry
// sweeps, mirroring rows to the database when an ORM handle is
// provided so sessions survive an engine restart.
type tokenStore struct {
	ttl time.Duration
	orm *gorm.DB
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

func newTokenStore(orm *gorm.DB, ttl time.Duration) (*tokenStore, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	ts := &tokenStore{
		ttl:    ttl,
		orm:    orm,
		now:    time.Now,
		tokens: make(map[string]tokenEntry),
	}

	if orm != nil {
		var models []tokenModel
		if err := orm.Where("expires_at > ?", time.Now()).Find(&models).Error; err != nil {
			return nil, err
		}
		for _, m := range models {
			token := m.toToken()
			ts.tokens[token.Value] = tokenEntry{MachineID: token.MachineID, Expires: token.ExpiresAt}
		}
	}

	return ts, nil
}

// Issue mints a fresh token for the machine, sweeping expired entries
// while it holds the lock.
func (ts *tokenStore) Issue(ctx context.Context, machineID string) (Token, error) {
	ts.mu.Lock()
	now := ts.now()
	for key, entry := range ts.tokens {
		if now.After(entry.Expires) {
			delete(ts.tokens, key)
		}
	}

	token := Token{
		ID:        uuid.New(),
		MachineID: machineID,
		Value:     uuid.New().String(),
		ExpiresAt: now.Add(ts.ttl),
	}
	ts.tokens[token.Value] = tokenEntry{MachineID: machineID, Expires: token.ExpiresAt}
	ts.mu.Unlock()

	if ts.orm != nil {
		model := tokenModel{
			ID:        token.ID,
			MachineID: token.MachineID,
			Token:     token.Value,
			ExpiresAt: token.ExpiresAt,
		}
		if err := ts.orm.WithContext(ctx).Create(&model).Error; err != nil {
			return Token{}, err
		}
	}

	return token, nil
}

// Validate checks that the value was issued to the machine and has not
// expired.
func (ts *tokenStore) Validate(machineID, value string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tokens[value]
	if !ok || entry.MachineID != machineID {
		return ErrTokenNotFound
	}
	if !ts.now().Before(entry.Expires) {
		delete(ts.tokens, value)
		return ErrTokenExpired
	}
	return nil
}

// shouldRotate reports whether a token is valid but has burned through
// more than half its lifetime, so the next client-ready exchanges it
// rather than letting it expire mid-session.
func (ts *tokenStore) shouldRotate(machineID, value string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	entry, ok := ts.tokens[value]
	if !ok || entry.MachineID != machineID {
		return false
	}
	return entry.Expires.Sub(ts.now()) < ts.ttl/2
}

// Rotate exchanges a still-valid token for a fresh one, invalidating
// the old value.
func (ts *tokenStore) Rotate(ctx context.Context, machineID, oldValue string) (Token, error) {
	if err := ts.Validate(machineID, oldValue); err != nil {
		return Token{}, err
	}

	ts.mu.Lock()
	delete(ts.tokens, oldValue)
	ts.mu.Unlock()

	if ts.orm != nil {
		if err := ts.orm.WithContext(ctx).
			Where("token = ?", oldValue).
			Delete(&tokenModel{}).Error; err != nil {
			return Token{}, err
		}
	}

	return ts.Issue(ctx, machineID)
}
