// Package id generates the short identifiers that tag watch sessions in log
// output.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// alphabet leaves out look-alike characters so IDs can be read back from a
// terminal.
const alphabet = "23456789abcdefghijkmnpqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 12

// Generate creates a prefixed ID, e.g. "ws-7fk2q9mzta3c".
// Returns an error if the system has insufficient entropy.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	if prefix == "" {
		return id, nil
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
