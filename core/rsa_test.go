package emv

import (
	"bytes"
	"testing"
)

// identityKey returns an 8-byte modulus large enough that any 8-byte value
// is its own residue, with exponent 1, so modExp is the identity function.
// This exercises PublicEncrypt/PublicDecrypt's size and envelope checks
// without needing a real keypair.
func identityKey() RSAPublicKey {
	return RSAPublicKey{
		N: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		E: []byte{0x01},
	}
}

func TestPublicDecryptValidatesEnvelope(t *testing.T) {
	key := identityKey()
	plaintext := []byte{0x6A, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xBC}

	got, err := key.PublicDecrypt(plaintext)
	if err != nil {
		t.Fatalf("PublicDecrypt returned error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got % X, want % X", got, plaintext)
	}
}

func TestPublicDecryptRejectsBadHeader(t *testing.T) {
	key := identityKey()
	plaintext := []byte{0x6B, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xBC}
	if _, err := key.PublicDecrypt(plaintext); err == nil {
		t.Fatalf("expected error for header byte != 0x6A")
	}
}

func TestPublicDecryptRejectsBadTrailer(t *testing.T) {
	key := identityKey()
	plaintext := []byte{0x6A, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xBD}
	if _, err := key.PublicDecrypt(plaintext); err == nil {
		t.Fatalf("expected error for trailer byte != 0xBC")
	}
}

func TestPublicDecryptRejectsWrongLength(t *testing.T) {
	key := identityKey()
	if _, err := key.PublicDecrypt([]byte{0x6A, 0xBC}); err == nil {
		t.Fatalf("expected error for ciphertext length mismatch")
	}
}

func TestPublicEncryptRejectsWrongLength(t *testing.T) {
	key := identityKey()
	if _, err := key.PublicEncrypt([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for plaintext length mismatch")
	}
}

func TestPublicEncryptRoundTrip(t *testing.T) {
	key := identityKey()
	plaintext := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x10}
	cipher, err := key.PublicEncrypt(plaintext)
	if err != nil {
		t.Fatalf("PublicEncrypt returned error: %v", err)
	}
	if !bytes.Equal(cipher, plaintext) {
		t.Fatalf("got % X, want % X", cipher, plaintext)
	}
}
