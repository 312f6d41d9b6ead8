// Package chatid derives the opaque room identifier shared by two users.
package chatid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

const separator = "|"

// ErrEmptyUserID is returned when either participant id is blank.
var ErrEmptyUserID = errors.New("both user ids are required")

// Canonical returns the order-independent chat id for the pair (a, b).
// The ids are sorted, joined and hashed with SHA-256 so the result cannot be
// mapped back to the participants.
func Canonical(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", ErrEmptyUserID
	}

	pair := []string{a, b}
	sort.Strings(pair)

	sum := sha256.Sum256([]byte(strings.Join(pair, separator)))
	return hex.EncodeToString(sum[:]), nil
}

// ForPartners maps each partner id to the chat id it shares with userID,
// skipping blank partner ids.
func ForPartners(userID string, partnerIDs []string) []string {
	out := make([]string, 0, len(partnerIDs))
	for _, partner := range partnerIDs {
		id, err := Canonical(userID, partner)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
