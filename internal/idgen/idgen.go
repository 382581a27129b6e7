// Package idgen mints run IDs. A run ID tags one agent process lifetime in
// logs and bus events, so restarts of the same agent name can be told apart.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// RunPrefix starts every run ID.
	RunPrefix = "run-"

	runAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	runLen      = 10
)

// NewRunID returns a fresh run ID, e.g. "run-k3x9q2mwvf".
func NewRunID() (string, error) {
	id, err := nanoid.Generate(runAlphabet, runLen)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return RunPrefix + id, nil
}
