package api

import "errors"

// ErrMissingUserID is returned when user_id is missing from context.
var ErrMissingUserID = errors.New("missing user_id in context")
