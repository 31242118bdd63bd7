package db

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned by Open for an unsupported store type
type ErrUnknownType struct {
	kind string
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown store type %q, expect %s|%s|%s", e.kind, TypeMemory, TypeBadger, TypeRedis)
}

var ErrInternal = errors.New("internal error")

var ErrNotFound = errors.New("not found")

var ErrClosed = errors.New("store closed")
