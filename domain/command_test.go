package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/errors"
)

func Test_SendMessageCommand_Rejects_Empty_Text_Without_Attachment(t *testing.T) {
	cmd := SendMessageCommand{ConversationID: "c1", SenderID: "alice", Text: "   "}

	err := cmd.Validate()

	require.ErrorIs(t, err, errors.ErrEmptyMessage)
}

func Test_SendMessageCommand_Accepts_Attachment_Without_Text(t *testing.T) {
	cmd := SendMessageCommand{
		ConversationID: "c1",
		SenderID:       "alice",
		Attachment:     &Attachment{Filename: "pitch.pdf", Data: []byte("%PDF-")},
	}

	assert.NoError(t, cmd.Validate())
}

func Test_SendMessageCommand_Rejects_Attachment_Without_Bytes(t *testing.T) {
	cmd := SendMessageCommand{
		ConversationID: "c1",
		SenderID:       "alice",
		Attachment:     &Attachment{Filename: "empty.pdf"},
	}

	require.ErrorIs(t, cmd.Validate(), errors.ErrEmptyMessage)
}

func Test_ProvisionCommand_Rejects_Equal_And_Empty_Participants(t *testing.T) {
	assert.ErrorIs(t, ProvisionCommand{UserA: "alice", UserB: "alice"}.Validate(), errors.ErrInvalidParticipants)
	assert.ErrorIs(t, ProvisionCommand{UserA: "alice", UserB: ""}.Validate(), errors.ErrInvalidParticipants)
	assert.ErrorIs(t, ProvisionCommand{UserA: "", UserB: "bob"}.Validate(), errors.ErrInvalidParticipants)
	assert.NoError(t, ProvisionCommand{UserA: "alice", UserB: "bob"}.Validate())
}

func Test_Message_Summary_Prefers_Text_Then_Photo_Then_Document(t *testing.T) {
	assert.Equal(t, "hello", Message{Text: "hello", ImageURL: "u"}.Summary())
	assert.Equal(t, "Photo", Message{ImageURL: "u"}.Summary())
	assert.Equal(t, "deck.pdf", Message{DocumentURL: "u", DocumentName: "deck.pdf"}.Summary())
}
