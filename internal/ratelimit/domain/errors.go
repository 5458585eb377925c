package domain

import (
	"github.com/allisson/courier/internal/errors"
)

// ErrContention indicates the counter kept changing under the caller and the
// admission could not be decided within the retry budget.
var ErrContention = errors.Wrap(errors.ErrConflict, "rate limit counter contention")
