package domain

import (
	"errors"
	"fmt"
)

// Expected business outcomes. Callers compare with errors.Is and surface them verbatim.
var (
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrDuplicatePurchase = errors.New("duplicate purchase")
	ErrNotYetOpen        = errors.New("sale not yet open")
	ErrEnded             = errors.New("sale ended")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Persistence outcomes reported by the order repository.
var (
	ErrOrderExists       = errors.New("order already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// MalformedEntryError reports a stream entry that can never be processed.
type MalformedEntryError struct {
	Field  string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed order entry: field %q %s", e.Field, e.Reason)
}
