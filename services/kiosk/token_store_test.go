package kiosk

import (
	"testing"
	"time"
)

func TestTokenStoreExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiry     int64
		nowOffset  time.Duration
		wantStored bool
	}{
		{
			name:       "valid before expiry",
			expiry:     base.Unix() + 100,
			nowOffset:  0,
			wantStored: true,
		},
		{
			name:       "absent at exact expiry",
			expiry:     base.Unix() + 100,
			nowOffset:  100 * time.Second,
			wantStored: false,
		},
		{
			name:       "absent after expiry",
			expiry:     base.Unix() + 100,
			nowOffset:  101 * time.Second,
			wantStored: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewTokenStore(NewMemoryStorage(), "machine-a", nil)
			store.now = func() time.Time { return base.Add(tt.nowOffset) }

			store.Store("T1", tt.expiry)

			token, ok := store.Get()
			if ok != tt.wantStored {
				t.Fatalf("Get() ok = %v, want %v", ok, tt.wantStored)
			}
			if ok && token.Value != "T1" {
				t.Fatalf("Get() value = %q, want %q", token.Value, "T1")
			}
		})
	}
}

func TestTokenStoreExpiryAdvancesClock(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base

	store := NewTokenStore(NewMemoryStorage(), "machine-a", nil)
	store.now = func() time.Time { return now }

	store.Store("T1", base.Unix()+100)

	if token, ok := store.Get(); !ok || token.Value != "T1" {
		t.Fatalf("Get() = %q, %v; want T1, true", token.Value, ok)
	}

	now = base.Add(101 * time.Second)

	if _, ok := store.Get(); ok {
		t.Fatal("Get() returned a token after expiry")
	}
}

func TestTokenStoreClearsForeignMachineToken(t *testing.T) {
	storage := NewMemoryStorage()

	first := NewTokenStore(storage, "machine-a", nil)
	first.now = func() time.Time { return time.Unix(1000, 0) }
	first.Store("T1", 2000)

	// Opening the store for a different configuration must clear the
	// persisted entries before anything else touches them.
	second := NewTokenStore(storage, "machine-b", nil)
	second.now = func() time.Time { return time.Unix(1000, 0) }

	if _, ok := second.Get(); ok {
		t.Fatal("token leaked across machine configurations")
	}
	if _, ok := storage.Get(storageKeyToken); ok {
		t.Fatal("stored token entry survived a configuration change")
	}
	if _, ok := storage.Get(storageKeyMachine); ok {
		t.Fatal("stored machine entry survived a configuration change")
	}
}

func TestTokenStoreSameMachineTokenSurvivesReopen(t *testing.T) {
	storage := NewMemoryStorage()

	first := NewTokenStore(storage, "machine-a", nil)
	first.now = func() time.Time { return time.Unix(1000, 0) }
	first.Store("T1", 2000)

	second := NewTokenStore(storage, "machine-a", nil)
	second.now = func() time.Time { return time.Unix(1000, 0) }

	token, ok := second.Get()
	if !ok || token.Value != "T1" {
		t.Fatalf("Get() = %q, %v; want T1, true", token.Value, ok)
	}
}

func TestTokenStoreClear(t *testing.T) {
	store := NewTokenStore(NewMemoryStorage(), "machine-a", nil)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	store.Store("T1", 2000)
	store.Clear()

	if _, ok := store.Get(); ok {
		t.Fatal("Get() returned a token after Clear()")
	}
}

func TestTokenStoreOverwrite(t *testing.T) {
	store := NewTokenStore(NewMemoryStorage(), "machine-a", nil)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	store.Store("T1", 2000)
	store.Store("T2", 3000)

	token, ok := store.Get()
	if !ok || token.Value != "T2" {
		t.Fatalf("Get() = %q, %v; want T2, true", token.Value, ok)
	}
	if token.Expiry != 3000 {
		t.Fatalf("Get() expiry = %d, want 3000", token.Expiry)
	}
}
