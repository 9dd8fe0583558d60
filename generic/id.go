package generic

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh 24-hex document id. Every store uses the same
// format so records move between backends without translation.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ParseID checks that id is a 24-hex document id.
func ParseID(field, id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return NewValidationError(field, "%q is not a valid id", id)
	}
	return nil
}
