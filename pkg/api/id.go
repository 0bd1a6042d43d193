package api

import (
	"regexp"
	"strings"

	"github.com/gofrs/uuid/v5"
)

const entryURNPrefix = "urn:uuid:"

var entryIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NewEntryID generates a new entry identifier. The identifier is a
// lower-case UUID, usable as a path segment; EntryURN turns it into the
// atom:id value.
func NewEntryID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// EntryURN returns the atom:id for an entry identifier.
func EntryURN(id string) string {
	if strings.HasPrefix(id, entryURNPrefix) {
		return id
	}
	return entryURNPrefix + id
}

// EntryIDFromURN strips the urn:uuid: prefix from an atom:id.
func EntryIDFromURN(urn string) string {
	return strings.TrimPrefix(urn, entryURNPrefix)
}

// ValidateEntryID checks whether the given string is a generated entry ID.
func ValidateEntryID(id string) bool {
	return entryIDPattern.MatchString(id)
}
