package scoring

import (
	"fmt"

	"github.com/okian/podium/internal/domain/model"
)

// ErrInvalidTime marks a race time string that cannot be encoded.
var ErrInvalidTime = fmt.Errorf("%w: invalid race time", model.ErrValidation)
