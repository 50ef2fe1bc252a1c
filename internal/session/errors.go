package session

import (
	"errors"
	"fmt"

	"github.com/vedran77/pulsechat/pkg/validator"
)

// Error kinds. Every error returned by this package matches at least one of
// them with errors.Is, next to its underlying cause.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrTransport  = errors.New("transport failure")
	ErrValidation = errors.New("invalid input")
)

var (
	ErrNotConnected      = errors.New("session is not connected")
	ErrNoActiveChannel   = errors.New("no channel is open")
	ErrChannelSuperseded = errors.New("channel was replaced by a newer open")
)

// classify tags err with kind unless it already carries one.
func classify(kind error, op string, err error) error {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrTransport) || errors.Is(err, ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

func invalid(errs validator.ValidationErrors) error {
	return fmt.Errorf("%w: %w", ErrValidation, errs)
}
