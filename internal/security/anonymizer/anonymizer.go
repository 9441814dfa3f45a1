// Package anonymizer derives the opaque tokens that stand in for a
// user's identity after depersonalization.
package anonymizer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DefaultContext namespaces the tokens used for in-graph reference
// rewriting. Other contexts (exports, audits) yield unrelated tokens
// for the same user.
const DefaultContext = "privacy"

// Anonymizer derives stable tokens from a secret key. The same
// user+context always maps to the same token, but without the key the
// mapping cannot be reversed or recomputed.
type Anonymizer struct {
	key []byte
}

// New returns an anonymizer for the given secret. The secret must not
// be empty; blake2b additionally caps keys at 64 bytes.
func New(secret string) (*Anonymizer, error) {
	if secret == "" {
		return nil, errors.New("anonymizer: secret must not be empty")
	}
	key := []byte(secret)
	if len(key) > 64 {
		key = key[:64]
	}
	return &Anonymizer{key: key}, nil
}

// Token derives the opaque token for a user in the default context.
func (a *Anonymizer) Token(userID string) string {
	return a.TokenInContext(userID, DefaultContext)
}

// TokenInContext derives a token namespaced by an explicit context.
func (a *Anonymizer) TokenInContext(userID, context string) string {
	h, err := blake2b.New256(a.key)
	if err != nil {
		// Key length is validated in New; a failure here is a bug.
		panic(fmt.Sprintf("anonymizer: %v", err))
	}
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(context))
	return hex.EncodeToString(h.Sum(nil))
}
