package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ObjectIDLength is the length of a MongoDB ObjectID in hex characters
const ObjectIDLength = 24

// IsObjectID reports whether id is a 24 character hex ObjectID as issued by
// the CRM's document store
func IsObjectID(id string) bool {
	if len(id) != ObjectIDLength {
		return false
	}
	for _, char := range id {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f') || (char >= 'A' && char <= 'F')) {
			return false
		}
	}
	return true
}

// ValidEntityID accepts the identifier shapes entity references arrive in:
// ObjectIDs from the document store and UUIDs from this service's own tables.
func ValidEntityID(id string) bool {
	id = strings.TrimSpace(id)
	if IsObjectID(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}
