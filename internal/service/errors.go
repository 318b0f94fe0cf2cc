package service

import "errors"

var (
	// ErrUnauthenticated indicates the operation requires a signed-in user.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCommunityNotFound indicates the referenced community does not exist.
	ErrCommunityNotFound = errors.New("community not found")
	// ErrChannelNotFound indicates the channel is not part of the community.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelExists is returned when the normalized channel slug is taken.
	ErrChannelExists = errors.New("channel already exists")
	// ErrInvalidChannelName is returned when a channel name normalizes to nothing.
	ErrInvalidChannelName = errors.New("channel name must contain letters or digits")
	// ErrNotMember indicates the user is not a member of the community.
	ErrNotMember = errors.New("user is not a member of the community")
	// ErrAssistantUnavailable wraps any failure of the text-generation provider.
	ErrAssistantUnavailable = errors.New("assistant unavailable")
	// ErrUploadTooLarge indicates the attachment exceeds the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum size")
	// ErrUploadTypeNotAllowed indicates the attachment is neither image nor video.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrStorageUnavailable indicates no blob store is configured for uploads.
	ErrStorageUnavailable = errors.New("attachment storage unavailable")
	// ErrSubscriptionClosed is returned by feeds that were closed or fell behind.
	ErrSubscriptionClosed = errors.New("subscription closed")
)
