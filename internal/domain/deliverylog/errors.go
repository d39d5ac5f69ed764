package deliverylog

import "errors"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("delivery record not found")
