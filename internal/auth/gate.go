package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrGateDisabled means no admin password was configured.
var ErrGateDisabled = errors.New("admin password not configured")

// Gate checks the single admin password against a bcrypt hash.
type Gate struct {
	hash []byte
}

// NewGate prefers a precomputed bcrypt hash and falls back to hashing the
// plain password. With neither, every login is refused.
func NewGate(hash, plain string) (*Gate, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		return &Gate{hash: []byte(hash)}, nil
	}
	if plain == "" {
		return &Gate{}, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Gate{hash: h}, nil
}

func (g *Gate) Enabled() bool {
	return g != nil && len(g.hash) > 0
}

func (g *Gate) Check(password string) error {
	if !g.Enabled() {
		return ErrGateDisabled
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(password))
}
