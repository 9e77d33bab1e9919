package domain

import (
	"time"

	"github.com/samber/lo"
)

// Message is an immutable chat event. At most one attachment (image or
// document) may be present; text may be empty only when one is.
type Message struct {
	ID           string    `json:"id" firestore:"-"`
	SenderID     string    `json:"senderId" firestore:"senderId"`
	Text         string    `json:"text" firestore:"text"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
	ReadBy       []string  `json:"readBy" firestore:"readBy"`
	ImageURL     string    `json:"imageUrl,omitempty" firestore:"imageUrl,omitempty"`
	DocumentURL  string    `json:"documentUrl,omitempty" firestore:"documentUrl,omitempty"`
	DocumentName string    `json:"documentName,omitempty" firestore:"documentName,omitempty"`
}

func (m Message) HasAttachment() bool {
	return m.ImageURL != "" || m.DocumentURL != ""
}

func (m Message) IsReadBy(userID string) bool {
	return lo.Contains(m.ReadBy, userID)
}

// Summary is the denormalized text stored on the parent conversation.
func (m Message) Summary() string {
	switch {
	case m.Text != "":
		return m.Text
	case m.ImageURL != "":
		return "Photo"
	case m.DocumentName != "":
		return m.DocumentName
	default:
		return "Attachment"
	}
}

// Attachment holds raw bytes pending upload to blob storage. The kind
// (image vs document) is decided from the detected content type, not from
// the filename.
type Attachment struct {
	Filename string
	Data     []byte
}
