package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"mentorlink/errors"
)

var validate = validator.New()

// SendMessageCommand carries a send request. Text is trimmed before the
// emptiness check so whitespace-only messages are rejected too.
type SendMessageCommand struct {
	ConversationID string `validate:"required"`
	SenderID       string `validate:"required"`
	Text           string
	Attachment     *Attachment
}

func (c SendMessageCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
	}
	if strings.TrimSpace(c.Text) == "" && !c.hasAttachmentData() {
		return errors.ErrEmptyMessage
	}
	return nil
}

func (c SendMessageCommand) hasAttachmentData() bool {
	return c.Attachment != nil && len(c.Attachment.Data) > 0
}

// ProvisionCommand resolves "start a conversation with user X".
type ProvisionCommand struct {
	UserA string `validate:"required"`
	UserB string `validate:"required"`
}

func (c ProvisionCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidParticipants, err)
	}
	if !ValidParticipants(c.UserA, c.UserB) {
		return errors.ErrInvalidParticipants
	}
	return nil
}
