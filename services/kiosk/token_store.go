package kiosk

import (
	"log"
	"strconv"
	"time"
)

// Storage keys for the three scoped entries. They are always written
// and cleared together.
const (
	storageKeyToken   = "session_token"
	storageKeyExpiry  = "session_token_expiry"
	storageKeyMachine = "session_machine_id"
)

// Token is the session credential issued by the engine. It is never
// mutated, only replaced.
type Token struct {
	Value     string
	Expiry    int64
	MachineID string
}

// TokenStore persists the session token, its expiry, and the owning
// machine-configuration identifier. A token is valid only while the
// current time is strictly before its expiry and the stored machine
// identifier matches the configuration the store was opened for.
type TokenStore struct {
	storage   Storage
	machineID string
	logger    *log.Logger
	now       func() time.Time
}

// NewTokenStore opens the token store for the given machine
// configuration. A persisted token owned by a different configuration
// is cleared immediately, before any other operation, so a token never
// leaks across machines.
func NewTokenStore(storage Storage, machineID string, logger *log.Logger) *TokenStore {
	s := &TokenStore{
		storage:   storage,
		machineID: machineID,
		logger:    logger,
		now:       time.Now,
	}
	if stored, ok := storage.Get(storageKeyMachine); ok && stored != machineID {
		s.Clear()
	}
	return s
}

// Get returns the stored token when present and not yet expired. A
// token whose expiry equals the current time counts as expired. Get
// never fails; storage errors read as absent.
func (s *TokenStore) Get() (Token, bool) {
	value, ok := s.storage.Get(storageKeyToken)
	if !ok || value == "" {
		return Token{}, false
	}
	rawExpiry, ok := s.storage.Get(storageKeyExpiry)
	if !ok {
		return Token{}, false
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return Token{}, false
	}
	if s.now().Unix() >= expiry {
		s.Clear()
		return Token{}, false
	}
	return Token{Value: value, Expiry: expiry, MachineID: s.machineID}, true
}

// Store persists the token, overwriting any prior value.
func (s *TokenStore) Store(value string, expiry int64) {
	if err := s.storage.Set(storageKeyToken, value); err != nil {
		s.logf("persist token: %v", err)
		return
	}
	if err := s.storage.Set(storageKeyExpiry, strconv.FormatInt(expiry, 10)); err != nil {
		s.logf("persist token expiry: %v", err)
	}
	if err := s.storage.Set(storageKeyMachine, s.machineID); err != nil {
		s.logf("persist machine id: %v", err)
	}
}

// Clear removes the token, expiry, and machine identifier together.
func (s *TokenStore) Clear() {
	if err := s.storage.Delete(storageKeyToken, storageKeyExpiry, storageKeyMachine); err != nil {
		s.logf("clear token: %v", err)
	}
}

func (s *TokenStore) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
