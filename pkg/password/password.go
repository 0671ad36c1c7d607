// Package password verifies and produces password hashes. Several hash
// schemes can coexist: stored hashes are matched against every registered
// strategy and the caller is told when a hash should be re-written with the
// preferred one.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Strategy is a single hash scheme
type Strategy interface {
	Name() string
	// Recognizes reports whether stored was produced by this scheme
	Recognizes(stored string) bool
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// Policy hashes with its preferred strategy and verifies against all of them
type Policy struct {
	preferred Strategy
	legacy    []Strategy
}

// NewPolicy builds a policy. The preferred strategy is used for new hashes,
// legacy ones are only used for verification.
func NewPolicy(preferred Strategy, legacy ...Strategy) *Policy {
	return &Policy{preferred: preferred, legacy: legacy}
}

// Default is bcrypt for new hashes with sha256-hex accepted for old accounts
func Default() *Policy {
	return NewPolicy(Bcrypt{Cost: bcrypt.DefaultCost}, SHA256Hex{})
}

// Hash hashes the password with the preferred strategy
func (p *Policy) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	return p.preferred.Hash(password)
}

// Verify checks password against stored
func (p *Policy) Verify(password, stored string) bool {
	s := p.strategyFor(stored)
	if s == nil {
		return false
	}
	return s.Verify(password, stored)
}

// NeedsUpgrade reports whether stored was produced by a non-preferred scheme
func (p *Policy) NeedsUpgrade(stored string) bool {
	s := p.strategyFor(stored)
	return s != nil && s.Name() != p.preferred.Name()
}

func (p *Policy) strategyFor(stored string) Strategy {
	if p.preferred.Recognizes(stored) {
		return p.preferred
	}
	for _, s := range p.legacy {
		if s.Recognizes(stored) {
			return s
		}
	}
	return nil
}

// Bcrypt is the preferred scheme
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return "bcrypt" }

func (Bcrypt) Recognizes(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (Bcrypt) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// SHA256Hex is the unsalted hex digest written by the file-based store
type SHA256Hex struct{}

func (SHA256Hex) Name() string { return "sha256" }

func (SHA256Hex) Recognizes(stored string) bool {
	if len(stored) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(stored)
	return err == nil
}

func (SHA256Hex) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (s SHA256Hex) Verify(password, stored string) bool {
	hashed, _ := s.Hash(password)
	return subtle.ConstantTimeCompare([]byte(hashed), []byte(strings.ToLower(stored))) == 1
}
