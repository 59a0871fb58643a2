package app

import (
	"errors"

	"github.com/gekko3d/soilvol/volrt/rt/core"
)

var (
	ErrAlreadyDisposed = errors.New("app: renderer already disposed")
	ErrStaleLoad       = errors.New("app: load superseded by a newer request")
	ErrClipUnsupported = errors.New("app: shader strategy does not support clipping")
	ErrInvalidSize     = errors.New("app: invalid surface size")

	ErrInvalidClipRange = core.ErrInvalidClipRange
)
