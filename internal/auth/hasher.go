package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

type Hasher struct {
	cost int
	// compared against when an account is missing so that failed logins
	// cost the same whether or not the email exists
	dummy []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("auth.NewHasher: %v", err))
	}
	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	const op = "auth.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a mismatch.
func (h *Hasher) Verify(plaintext, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	return err == nil
}

// Burn runs a comparison that always fails.
func (h *Hasher) Burn(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}

// HashToken fingerprints a refresh token. Signed tokens are longer than the
// 72 bytes bcrypt reads, so the token is reduced with sha256 first.
func (h *Hasher) HashToken(token string) (string, error) {
	return h.Hash(fingerprint(token))
}

func (h *Hasher) VerifyToken(token, digest string) bool {
	return h.Verify(fingerprint(token), digest)
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
