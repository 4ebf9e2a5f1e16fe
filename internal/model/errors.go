package model

import "errors"

// Errors shared by the stores, services and handlers.
var (
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTenantNotFound indicates the workspace key or ID is unknown.
	ErrTenantNotFound = errors.New("workspace not found")

	// ErrConversationNotFound indicates the conversation does not exist for the tenant.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationResolved indicates a pipeline write to a resolved conversation.
	ErrConversationResolved = errors.New("conversation is resolved")

	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidTurn indicates a malformed ledger turn.
	ErrInvalidTurn = errors.New("invalid conversation turn")

	// ErrLimitReached indicates a plan limit was hit.
	ErrLimitReached = errors.New("limit reached")

	// ErrGenerationFailed indicates the answer generator returned no usable text.
	ErrGenerationFailed = errors.New("generation failed")
)
