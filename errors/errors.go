package errors

import "fmt"

var (
	ErrInvalidParticipants  = fmt.Errorf("invalid participants")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrStoreUnavailable     = fmt.Errorf("store unavailable")
	ErrEmptyMessage         = fmt.Errorf("empty message")
	ErrAttachmentUpload     = fmt.Errorf("attachment upload failed")
	ErrSendFailed           = fmt.Errorf("message send failed")
	ErrProfileNotFound      = fmt.Errorf("profile not found")
	ErrDataCorrupted        = fmt.Errorf("data corrupted")
	ErrAlreadyListening     = fmt.Errorf("already listening")
	ErrNotListening         = fmt.Errorf("not listening")
)
