package api

import (
	"encoding/json"
	"fmt"

	"tankobon/internal/progress"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TagDefinition describes an alias the catalog does not know yet. It encodes
// as [group_id|null, name].
type TagDefinition struct {
	GroupID *int
	Name    string
}

// MarshalJSON renders the definition as a two-element array.
func (d TagDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.GroupID, d.Name})
}

// UnmarshalJSON accepts [group_id|null, name].
func (d *TagDefinition) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tag definition must be [group_id, name]: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("tag definition must have 2 elements, got %d", len(raw))
	}
	var group *int
	if err := json.Unmarshal(raw[0], &group); err != nil {
		return fmt.Errorf("tag definition group: %w", err)
	}
	var name *string
	if err := json.Unmarshal(raw[1], &name); err != nil {
		return fmt.Errorf("tag definition name: %w", err)
	}
	d.GroupID = group
	d.Name = ""
	if name != nil {
		d.Name = *name
	}
	return nil
}

// AddRequest submits an acquisition.
type AddRequest struct {
	SourceDocumentID string                   `json:"source_document_id"`
	InexistentTags   map[string]TagDefinition `json:"inexistent_tags,omitempty"`
}

// AddResponse carries either a message or a redirect.
type AddResponse struct {
	Message     string   `json:"message,omitempty"`
	RedirectURL string   `json:"redirect_url,omitempty"`
	State       string   `json:"state,omitempty"`
	Unresolved  []string `json:"unresolved,omitempty"`
}

// MissingTag is an alias absent from the catalog.
type MissingTag struct {
	Name    string `json:"name"`
	GroupID *int   `json:"group_id"`
}

// TagGroup is a catalog tag group.
type TagGroup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Tag is a catalog tag.
type Tag struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	GroupID int    `json:"group_id"`
	Alias   string `json:"alias"`
}

// Document describes a catalogued document.
type Document struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Path      string   `json:"path"`
	Authors   []string `json:"authors"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// DocumentDetail is a document with its tags.
type DocumentDetail struct {
	Document Document `json:"document"`
	Tags     []Tag    `json:"tags"`
}

// SearchResult summarizes a source record.
type SearchResult struct {
	SourceDocumentID string   `json:"source_document_id"`
	Title            string   `json:"title"`
	Artists          []string `json:"artists"`
	Tags             []string `json:"tags"`
	Fragments        int      `json:"fragments"`
}

// StatusResponse lists every tracked job.
type StatusResponse struct {
	Tasks          map[string]progress.Entry `json:"tasks"`
	RoutingVersion string                    `json:"routing_version,omitempty"`
}

// ErrorResponse is returned for non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
