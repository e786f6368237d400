package storage

import "errors"

// NotFoundError is returned when a conversation or message doesn't exist in the store.
type NotFoundError struct {
	ConversationID string
	MessageID      string
}

func (e NotFoundError) Error() string {
	switch {
	case e.MessageID != "":
		return "message not found: " + e.ConversationID + "/" + e.MessageID
	case e.ConversationID != "":
		return "conversation not found: " + e.ConversationID
	default:
		return "conversation not found"
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
