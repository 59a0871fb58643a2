package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches every fetch failure. Callers may retry.
	ErrNetwork = errors.New("loader: network error")
	// ErrDecode matches every codec failure. Retrying the same input is pointless.
	ErrDecode = errors.New("loader: decode error")
)

type ErrorKind uint8

const (
	KindNetwork ErrorKind = iota
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// LoadError carries the failing URL and the underlying cause. Codec errors are
// wrapped unchanged, so errors.Is(err, codec.ErrBadMagic) still matches.
type LoadError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loader: %s error loading '%s': %v", e.Kind, e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

// Retryable reports whether the same request may succeed later.
func (e *LoadError) Retryable() bool {
	return e.Kind == KindNetwork
}
