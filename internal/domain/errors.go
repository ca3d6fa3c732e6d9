package domain

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrIdentity         = errors.New("identity requires user id or name")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrRateLimited      = errors.New("rate limited")
	ErrNotWhiteboard    = errors.New("channel is not a whiteboard")

	ErrMessageNotFound = errors.New("message not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrUserNotFound    = errors.New("user not found")
)
