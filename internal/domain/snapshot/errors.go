package snapshot

import "errors"

// ErrMalformed marks a roster emission that cannot be ranked.
var ErrMalformed = errors.New("malformed snapshot")
