package crypto

import (
	"strings"
	"testing"
)

func TestNewKeyringValidation(t *testing.T) {
	tests := []struct {
		name     string
		identity []string
		envelope []string
		version  int
		wantErr  string
	}{
		{
			name:     "valid single generation",
			identity: []string{"a"},
			envelope: []string{"b"},
			version:  0,
		},
		{
			name:     "valid after rotation",
			identity: []string{"a1", "a2", "a3"},
			envelope: []string{"b1", "b2", "b3"},
			version:  2,
		},
		{
			name:     "no generations",
			identity: nil,
			envelope: nil,
			version:  0,
			wantErr:  "at least one secret",
		},
		{
			name:     "version out of range",
			identity: []string{"a"},
			envelope: []string{"b"},
			version:  1,
			wantErr:  "out of range",
		},
		{
			name:     "negative version",
			identity: []string{"a"},
			envelope: []string{"b"},
			version:  -1,
			wantErr:  "out of range",
		},
		{
			name:     "mismatched history lengths",
			identity: []string{"a1", "a2"},
			envelope: []string{"b1"},
			version:  0,
			wantErr:  "mismatched",
		},
		{
			name:     "empty secret in history",
			identity: []string{"a1", ""},
			envelope: []string{"b1", "b2"},
			version:  0,
			wantErr:  "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyring(tt.identity, tt.envelope, tt.version)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestKeyringRotationSafety(t *testing.T) {
	// Encrypt under generation 1 of a two-generation keyring.
	before, err := NewKeyring([]string{"idA", "idB"}, []string{"envA", "envB"}, 1)
	if err != nil {
		t.Fatal(err)
	}

	ct, version, err := before.Seal(ContextReminder, "reminder body")
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("expected key version 1, got %d", version)
	}

	// Rotate: append a third generation and advance the current index. The
	// old record must still decrypt under its recorded version.
	after, err := NewKeyring([]string{"idA", "idB", "idC"}, []string{"envA", "envB", "envC"}, 2)
	if err != nil {
		t.Fatal(err)
	}

	got, err := after.Open(ContextReminder, ct, version)
	if err != nil {
		t.Fatalf("decryption after rotation failed: %v", err)
	}
	if got != "reminder body" {
		t.Errorf("want %q, got %q", "reminder body", got)
	}

	// New writes use the new generation.
	_, v2, err := after.Seal(ContextReminder, "new body")
	if err != nil {
		t.Fatal(err)
	}
	if v2 != 2 {
		t.Errorf("new encryption should use version 2, got %d", v2)
	}

	// Opening with the wrong recorded version must fail, not fall back.
	if _, err := after.Open(ContextReminder, ct, 2); err == nil {
		t.Error("decrypting a v1 record with the v2 key should fail")
	}
}

func TestKeyringPseudonymStableAcrossRotation(t *testing.T) {
	before, err := NewKeyring([]string{"idA"}, []string{"envA"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	after, err := NewKeyring([]string{"idA", "idB"}, []string{"envA", "envB"}, 1)
	if err != nil {
		t.Fatal(err)
	}

	// A process pinned back to generation 0 with the full history still
	// produces the original pseudonym.
	pinned, err := NewKeyring([]string{"idA", "idB"}, []string{"envA", "envB"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	old := before.Pseudonymize("12345")
	if pinned.Pseudonymize("12345") != old {
		t.Error("generation-0 pseudonym must be recomputable after rotation")
	}

	if after.Pseudonymize("12345") == old {
		t.Error("current-generation pseudonym should differ once the generation advances")
	}
}

func TestKeyringContextSeparation(t *testing.T) {
	k, err := NewKeyring([]string{"id"}, []string{"env"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	ct, version, err := k.Seal(ContextMessage, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.Open(ContextReminder, ct, version); err == nil {
		t.Error("an envelope sealed for one purpose must not open under another")
	}
}

func TestKeyringUnknownVersion(t *testing.T) {
	k, err := NewKeyring([]string{"id"}, []string{"env"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.Open(ContextMessage, "whatever", 7); err == nil {
		t.Error("unknown version should error")
	}
}
