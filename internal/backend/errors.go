package backend

import "errors"

// ErrShape is returned, or carried in a panic, when tensor lengths disagree.
var ErrShape = errors.New("backend: shape mismatch")
