package notify

import "errors"

// ErrPolicy marks an unknown score update policy.
var ErrPolicy = errors.New("invalid score update policy")
