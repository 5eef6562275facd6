// Package answer checks submitted answers.
//
// The primary check is the remote validation service; when it cannot be
// reached the configured fallback table decides. Pairs absent from the
// table are incorrect.
package answer

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/contest/internal/config"
)

// ErrUnavailable is returned when the validation service could not produce
// a verdict (transport failure, non-2xx status, undecodable reply).
var ErrUnavailable = errors.New("answer validation unavailable")

// Validator decides whether answer is correct for (stage, step).
type Validator interface {
	Validate(ctx context.Context, stage config.StageID, step int, answer string) (bool, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, stage config.StageID, step int, answer string) (bool, error)

func (f ValidatorFunc) Validate(ctx context.Context, stage config.StageID, step int, answer string) (bool, error) {
	return f(ctx, stage, step, answer)
}

// Normalize canonicalizes an answer: NFC, case folded, surrounding
// whitespace trimmed. Both sides of every comparison go through it.
func Normalize(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFC.String(s)))
}
