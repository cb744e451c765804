// Package reference produces the human-readable identifiers used for quotes
// and contracts. The generator itself only computes the next candidate; the
// caller persists the owning row under a uniqueness constraint and retries the
// whole read-format-insert loop on conflict. That constraint plus the bounded
// retry is the entire cross-instance correctness story; there is no lock.
package reference

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// MaxAttempts bounds the conflict retry loop. Exceeding it means the scope is
// under pathological contention and needs operator attention.
const MaxAttempts = 5

var ErrReferenceExhausted = errors.New("reference_exhausted")

// Scope names one identifier sequence: everything before the numeric suffix,
// and the zero-pad width of the suffix (4 for quotes, 5 for contracts).
type Scope struct {
	Prefix string
	Width  int
}

// Sequencer reads the lexicographically greatest existing identifier starting
// with a prefix, or "" when the sequence is empty.
type Sequencer interface {
	MaxWithPrefix(ctx context.Context, prefix string) (string, error)
}

type Generator struct {
	seq Sequencer
}

func NewGenerator(seq Sequencer) *Generator {
	return &Generator{seq: seq}
}

// Next computes the next identifier for the scope. A missing or unparsable
// suffix restarts the sequence at 1.
func (g *Generator) Next(ctx context.Context, scope Scope) (string, error) {
	if scope.Prefix == "" || scope.Width <= 0 {
		return "", fmt.Errorf("invalid reference scope %+v", scope)
	}
	last, err := g.seq.MaxWithPrefix(ctx, scope.Prefix)
	if err != nil {
		return "", err
	}
	next := 1
	if last != "" {
		suffix := strings.TrimPrefix(last, scope.Prefix)
		if n, err := strconv.Atoi(suffix); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", scope.Prefix, scope.Width, next), nil
}

// Insert runs fn, which must attempt the insert guarded by the identifier's
// uniqueness constraint, recomputing the identifier on every attempt. A
// duplicate-key failure means a concurrent writer won the number; anything
// else aborts immediately.
func Insert(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsDuplicate(err) {
			return err
		}
	}
	return ErrReferenceExhausted
}

// IsDuplicate recognizes uniqueness-constraint violations across the drivers
// in use (postgres and sqlite), with gorm's translated error first.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
