package emv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Settings is the terminal-side configuration supplied at session
// construction: its own capability flags, the TVR seed values it starts a
// transaction with, whether it is allowed to source randomness, and a set
// of tag overrides applied before the transaction begins.
type Settings struct {
	UseRandom    bool
	Capabilities Capabilities
	TVR          TVR
	DefaultTags  map[string]string // hex tag -> hex value
}

func (s Settings) fillRandom(dst []byte) error {
	if !s.UseRandom {
		return fmt.Errorf("settings: random bytes requested but use_random is false and no value was supplied")
	}
	_, err := rand.Read(dst)
	return err
}

// fillOptionalPadding fills dst with random bytes when randomness is
// permitted, and leaves it zeroed otherwise. Unlike fillRandom, a disabled
// random policy is not an error here: padding has no "must be supplied"
// fallback, it only needs to occupy the right number of bytes.
func (s Settings) fillOptionalPadding(dst []byte) error {
	if !s.UseRandom {
		return nil
	}
	_, err := rand.Read(dst)
	return err
}

// applyDefaults installs the configured default tag overrides, then fills
// in tag 9A (transaction date, BCD YYMMDD) and tag 9F37 (unpredictable
// number) if the card or the overrides have not already supplied them.
func (sess *Session) applyDefaults() error {
	for tagHex, valueHex := range sess.settings.DefaultTags {
		value, err := hex.DecodeString(valueHex)
		if err != nil {
			return fmt.Errorf("settings: default tag %s has invalid hex value: %w", tagHex, err)
		}
		sess.store.put(tagHex, value)
	}

	if _, ok := sess.store.get("9A"); !ok {
		today := time.Now()
		ascii := fmt.Sprintf("%02d%02d%02d", today.Year()%100, today.Month(), today.Day())
		bcd, err := AsciiToBCDCN([]byte(ascii), 3)
		if err != nil {
			return fmt.Errorf("settings: encoding transaction date: %w", err)
		}
		sess.store.put("9A", bcd)
	}

	if _, ok := sess.store.get("9F37"); !ok {
		var un [4]byte
		if err := sess.settings.fillRandom(un[:]); err != nil {
			return fmt.Errorf("settings: tag 9F37 missing and %w", err)
		}
		sess.store.put("9F37", un[:])
	}

	return nil
}
