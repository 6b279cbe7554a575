package algorithm

import "errors"

var (
	ErrInvalidCombination = errors.New("asymmetric and symmetric algorithms must both be none or both be set")
	ErrUnknownAlgorithm   = errors.New("unknown algorithm")
)
