package dispatch

import "errors"

// Sentinel error kinds for delivery.
var (
	ErrConfiguration = errors.New("delivery configuration error")
	ErrDelivery      = errors.New("delivery failed")
)
