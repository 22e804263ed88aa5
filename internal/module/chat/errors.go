package chat

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation does not
	// exist or is owned by another user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when the submitted message is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrOpusAccessDenied is returned when a user without premium access
	// requests a Claude Opus model.
	ErrOpusAccessDenied = errors.New("claude opus access not unlocked")

	// ErrOpusLimitReached is returned when today's Claude Opus token
	// allowance is exhausted.
	ErrOpusLimitReached = errors.New("claude opus daily limit reached")
)
