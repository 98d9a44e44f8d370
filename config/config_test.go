package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
terminal:
  use_random: true
  capabilities:
    sda: true
    dda: true
  tvr_seed:
    default_tdol_used: false
  default_tags:
    "9F1A": "0840"
ca_keys:
  "A000000003":
    index: "01"
    modulus_hex: "AABBCCDD"
    exponent_hex: "03"
tag_dictionary:
  "5A": "Application PAN"
`)

	settings, caKeys, dict, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !settings.UseRandom {
		t.Fatalf("expected use_random true")
	}
	if !settings.Capabilities.SDA || !settings.Capabilities.DDA {
		t.Fatalf("expected SDA and DDA capabilities set")
	}
	if settings.DefaultTags["9F1A"] != "0840" {
		t.Fatalf("expected default tag 9F1A preserved, got %v", settings.DefaultTags)
	}
	key, ok := caKeys["A000000003"]["01"]
	if !ok {
		t.Fatalf("expected CA key for RID A000000003 index 01")
	}
	if len(key.N) != 4 {
		t.Fatalf("got modulus length %d, want 4", len(key.N))
	}
	if dict["5A"] != "Application PAN" {
		t.Fatalf("expected tag dictionary entry for 5A, got %v", dict)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
terminal:
  use_random: true
  bogus_field: 1
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRequiresUseRandom(t *testing.T) {
	path := writeConfig(t, `
terminal:
  capabilities:
    sda: true
`)
	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "use_random is required") {
		t.Fatalf("expected use_random required error, got %v", err)
	}
}

func TestLoadRejectsIncompleteCAKey(t *testing.T) {
	path := writeConfig(t, `
terminal:
  use_random: false
ca_keys:
  "A000000003":
    index: "01"
    modulus_hex: "AABB"
`)
	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "exponent_hex is required") {
		t.Fatalf("expected exponent_hex required error, got %v", err)
	}
}

func TestLoadRejectsInvalidHex(t *testing.T) {
	path := writeConfig(t, `
terminal:
  use_random: false
ca_keys:
  "A000000003":
    index: "01"
    modulus_hex: "ZZ"
    exponent_hex: "03"
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid hex modulus")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
