package model

import "errors"

// ErrValidation marks input rejected before it reaches the roster.
var ErrValidation = errors.New("validation failed")
