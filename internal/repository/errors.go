// Package repository holds what the server-side segment stores share.
// Stores live in the memory/ and postgres/ subpackages.
package repository

import "errors"

// Sentinel errors returned by every SegmentStore implementation.
var (
	ErrNotFound      = errors.New("segment not found")
	ErrDuplicateName = errors.New("a segment with this name already exists")
)
