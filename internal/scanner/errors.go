package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientHistory means a series is shorter than the strategy and
	// mode require. The symbol is skipped, not failed.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrConfig is returned before any fetch when the scan is misconfigured.
	ErrConfig = errors.New("invalid scan configuration")
)

// FetchError wraps a data source failure for one symbol.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
