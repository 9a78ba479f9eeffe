package core

import "fmt"

// EventType represents the type of change in the vault.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Collection names the record collection an event belongs to.
type Collection string

const (
	CollectionNotes      Collection = "notes"
	CollectionCategories Collection = "categories"
)

// Event represents a change in the vault.
type Event struct {
	Type       EventType
	Collection Collection
	ID         string
	Timestamp  int64 // Unix timestamp
}

func (e Event) String() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s", e.Type, e.Collection)
	}
	return fmt.Sprintf("%s %s/%s", e.Type, e.Collection, e.ID)
}
