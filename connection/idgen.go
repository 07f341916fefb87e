package connection

import "github.com/google/uuid"

// IDGenerator produces client ids. Callers must retry on collision against
// the live clients map (spec.md §9); a cryptographically random generator
// makes that astronomically unlikely but the contract is still defined.
type IDGenerator func() (string, error)

// NewUUIDGenerator returns an IDGenerator backed by google/uuid. A v4 UUID's
// hyphens are stripped, leaving a 32-character lowercase hex token that
// satisfies spec.md's id grammar (≤32 chars, [A-Za-z0-9-]+) exactly at the
// length boundary.
func NewUUIDGenerator() IDGenerator {
	return func() (string, error) {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		return stripHyphens(u.String()), nil
	}
}

func stripHyphens(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
