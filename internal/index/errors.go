package index

import "errors"

// ErrDimensionMismatch is returned by Add and Search when an embedding's
// length disagrees with the dimensionality fixed at index creation. It is
// fatal for the offending call and never retried; the index is unchanged.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
