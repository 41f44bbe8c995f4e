package app

import "errors"

// ErrStoreRequired is returned by New when no store is configured.
var ErrStoreRequired = errors.New("store is required")
