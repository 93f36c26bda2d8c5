package files

import "errors"

// Classified errors returned by every operation in this package, per the
// tool executor's error contract: NotFound, PathOutsideWorkspace,
// IOFailure, TooLarge.
var (
	ErrNotFound            = errors.New("not found")
	ErrPathOutsideWorkspace = errors.New("path escapes workspace")
	ErrIOFailure            = errors.New("io failure")
	ErrTooLarge             = errors.New("body exceeds maximum size")
)

// MaxBodyBytes is the hard ceiling on any single read/write body.
const MaxBodyBytes = 10 << 20 // 10 MiB
