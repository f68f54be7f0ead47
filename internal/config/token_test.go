package config

import (
	"encoding/hex"
	"testing"
)

func TestSecretStoreRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	store := NewSecretStore()

	if _, err := store.Get("applyq", "api_token"); err == nil {
		t.Fatal("Get on an empty store succeeded")
	}

	if err := store.Set("applyq", "api_token", "tok-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get("applyq", "api_token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("Get = %q, want tok-1", got)
	}

	// A second account under the same service does not clobber the first.
	if err := store.Set("applyq", "other", "tok-2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = store.Get("applyq", "api_token")
	if err != nil || got != "tok-1" {
		t.Errorf("Get after second Set = %q/%v, want tok-1", got, err)
	}
}

func TestGetAPITokenGeneratesOnce(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	store := NewSecretStore()

	token, err := GetAPIToken(store)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	again, err := GetAPIToken(store)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if again != token {
		t.Errorf("second call generated a new token")
	}
}

func TestGetAPITokenReusesExisting(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	store := NewSecretStore()

	if err := store.Set("applyq", "api_token", "preexisting"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	token, err := GetAPIToken(store)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if token != "preexisting" {
		t.Errorf("token = %q, want the stored value", token)
	}
}
