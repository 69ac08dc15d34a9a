package shared

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
