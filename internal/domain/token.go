package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ─── Interaction Tokens ─────────────────────────────────────────────────────
// A token is the only state a prompt carries back to the engine. It is
// untrusted input: parsing only checks shape, the promotion workflow checks it
// against the live offer table.

// TokenPrefix namespaces tier interactions among other button identifiers.
const TokenPrefix = "tier"

// TokenKind tags the variant of an interaction token.
type TokenKind string

const (
	TokenPromote TokenKind = "promote"
)

// PromotionToken identifies one promotion offer.
type PromotionToken struct {
	Kind    TokenKind
	UserID  string
	Target  int
	OfferID uuid.UUID
}

// String encodes the token as tier:promote:<user>:<target>:<offer>.
func (t PromotionToken) String() string {
	return strings.Join([]string{
		TokenPrefix,
		string(t.Kind),
		t.UserID,
		strconv.Itoa(t.Target),
		t.OfferID.String(),
	}, ":")
}

// IsTierToken reports whether raw belongs to this engine at all, so adapters
// can route interactions without parsing them.
func IsTierToken(raw string) bool {
	return strings.HasPrefix(raw, TokenPrefix+":")
}

// ParsePromotionToken decodes raw. Every failure wraps ErrUnauthorized.
func ParsePromotionToken(raw string) (PromotionToken, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 5 || parts[0] != TokenPrefix {
		return PromotionToken{}, fmt.Errorf("%w: malformed token", ErrUnauthorized)
	}
	if TokenKind(parts[1]) != TokenPromote {
		return PromotionToken{}, fmt.Errorf("%w: unknown token kind %q", ErrUnauthorized, parts[1])
	}
	userID := parts[2]
	if userID == "" || !isDigits(userID) {
		return PromotionToken{}, fmt.Errorf("%w: bad user id", ErrUnauthorized)
	}
	target, err := strconv.Atoi(parts[3])
	if err != nil || target < 0 {
		return PromotionToken{}, fmt.Errorf("%w: bad target tier", ErrUnauthorized)
	}
	offerID, err := uuid.Parse(parts[4])
	if err != nil {
		return PromotionToken{}, fmt.Errorf("%w: bad offer id", ErrUnauthorized)
	}
	return PromotionToken{
		Kind:    TokenPromote,
		UserID:  userID,
		Target:  target,
		OfferID: offerID,
	}, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
