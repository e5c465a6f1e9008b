package domain

import "errors"

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")

	// ErrRoomNotFound: the room document is absent on join.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInvalidMediaURL: the URL matches no known source pattern or the
	// extracted identifier fails its format check.
	ErrInvalidMediaURL = errors.New("invalid media url")

	// ErrShareInProgress: the operation is mutually exclusive with an
	// active screen share.
	ErrShareInProgress = errors.New("share in progress")

	// ErrCaptureDenied: capture device access refused by the user or OS.
	ErrCaptureDenied = errors.New("capture permission denied")

	// ErrTransport: a media session creation or negotiation step failed.
	ErrTransport = errors.New("transport failure")

	// ErrStore: a store operation was rejected.
	ErrStore = errors.New("store failure")

	// ErrChatRateLimited: the sender exceeded the chat rate limit.
	ErrChatRateLimited = errors.New("chat rate limited")
)
