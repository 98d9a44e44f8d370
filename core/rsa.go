package emv

import (
	"fmt"
	"math/big"
)

// RSAPublicKey is a raw (unpadded) RSA public key as used throughout EMV
// certificate recovery: modulus and exponent are big-endian byte strings,
// and every operation works at a fixed size equal to len(N) — there is no
// PKCS#1 padding scheme, the structure EMV needs (header/trailer bytes,
// hashes, lengths) lives directly in the plaintext.
type RSAPublicKey struct {
	N []byte
	E []byte
}

func (k RSAPublicKey) size() int {
	return len(k.N)
}

func (k RSAPublicKey) modExp(input []byte) ([]byte, error) {
	n := new(big.Int).SetBytes(k.N)
	e := new(big.Int).SetBytes(k.E)
	c := new(big.Int).SetBytes(input)
	if c.Cmp(n) >= 0 {
		return nil, fmt.Errorf("rsa: input not smaller than modulus")
	}

	result := new(big.Int).Exp(c, e, n)

	out := make([]byte, k.size())
	result.FillBytes(out)
	return out, nil
}

// PublicEncrypt raw-RSA-encrypts plaintext (used to cipher a PIN block
// under the ICC PIN public key). plaintext must already be exactly
// len(N) bytes.
func (k RSAPublicKey) PublicEncrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) != k.size() {
		return nil, fmt.Errorf("rsa: plaintext length %d != modulus length %d", len(plaintext), k.size())
	}
	return k.modExp(plaintext)
}

// PublicDecrypt raw-RSA-decrypts a certificate or signature and validates
// the EMV recovery envelope: the recovered value must be exactly len(N)
// bytes, start with 0x6A, and end with 0xBC.
func (k RSAPublicKey) PublicDecrypt(cipher []byte) ([]byte, error) {
	if len(cipher) != k.size() {
		return nil, fmt.Errorf("rsa: ciphertext length %d != modulus length %d", len(cipher), k.size())
	}
	data, err := k.modExp(cipher)
	if err != nil {
		return nil, err
	}
	if data[0] != 0x6A {
		return nil, fmt.Errorf("rsa: recovered header byte 0x%02X != 0x6A", data[0])
	}
	if data[len(data)-1] != 0xBC {
		return nil, fmt.Errorf("rsa: recovered trailer byte 0x%02X != 0xBC", data[len(data)-1])
	}
	return data, nil
}
