package types

import (
	"github.com/google/uuid"
)

// DocumentID identifies one assembled ping instance. The collector uses
// it for server-side de-duplication, so it must be unique across the
// lifetime of the on-disk queue.
type DocumentID string

// ClientID identifies this installation across pings. Generated once on
// first run and persisted in client state.
type ClientID string

// NewDocumentID generates a random (v4) document identifier.
// Panics only on a broken entropy source; acceptable for ID generation.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

// NewClientID generates a random (v4) client identifier.
func NewClientID() ClientID {
	return ClientID(uuid.New().String())
}

// ParseDocumentID validates and converts a string to a DocumentID.
// Rejects malformed UUIDs so bad IDs never enter the queue.
func ParseDocumentID(s string) (DocumentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}

// ParseClientID validates and converts a string to a ClientID.
func ParseClientID(s string) (ClientID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ClientID(s), nil
}
