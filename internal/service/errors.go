package service

import (
	"errors"

	"fulfillment-service/internal/inventory"
)

// ErrOutOfStock is re-exported so callers can gate on allocation failures
// without importing the inventory package.
var ErrOutOfStock = inventory.ErrOutOfStock

// ErrInvalidTransition is returned when a trigger targets a status that is not
// reachable from the split's current state. Recoverable; state is unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrMissingLinkage is returned when a required courier or financial reference
// is absent, e.g. refunding an order with no original transaction.
var ErrMissingLinkage = errors.New("missing linkage")
