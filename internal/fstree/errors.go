package fstree

import "errors"

// ErrSymlinkEscape is returned when a symlink inside a walked root
// resolves outside of that root. Mirrors the teacher's archive-extraction
// slip guard (internal/core/receiver.go), applied here to the send side.
var ErrSymlinkEscape = errors.New("fstree: symlink escapes its root")

// ErrInvalidPath is returned for a relative path that is not valid UTF-8
// or that contains a ".." component.
var ErrInvalidPath = errors.New("fstree: invalid relative path")
