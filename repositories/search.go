package repositories

import (
	"context"

	"github.com/blugelabs/bluge"

	"mentorlink/domain"
)

// MessageIndex is a bluge full-text index over message text. Documents are
// keyed by the badger message key so search hits resolve straight back to
// stored records.
type MessageIndex struct {
	writer *bluge.Writer
}

func NewMessageIndex(path string) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

func (i *MessageIndex) Index(key, conversationID string, msg domain.Message) error {
	doc := bluge.NewDocument(key).
		AddField(bluge.NewKeywordField("conversationId", conversationID)).
		AddField(bluge.NewKeywordField("senderId", msg.SenderID)).
		AddField(bluge.NewTextField("text", msg.Text))
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the badger keys of messages in conversationID matching the
// query, best score first.
func (i *MessageIndex) Search(ctx context.Context, conversationID, query string, limit int) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID).SetField("conversationId")).
		AddMust(bluge.NewMatchQuery(query).SetField("text"))

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var keys []string
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		if err := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				keys = append(keys, string(value))
			}
			return true
		}); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
