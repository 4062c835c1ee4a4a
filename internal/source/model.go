package source

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TagKind classifies a raw tag by the taxonomy it came from.
type TagKind int

const (
	// TagGeneric is a free-form tag with no implied catalog group.
	TagGeneric TagKind = iota
	// TagSetting names the series or world a document belongs to.
	TagSetting
	// TagCharacter names a character appearing in a document.
	TagCharacter
)

// Catalog tag groups implied by tag kinds.
const (
	GroupSetting   = 1
	GroupCharacter = 2
)

func (k TagKind) String() string {
	switch k {
	case TagSetting:
		return "setting"
	case TagCharacter:
		return "character"
	default:
		return "generic"
	}
}

// RawTag is a source-native tag. Its alias is the key used to find the
// matching catalog tag.
type RawTag struct {
	Kind  TagKind
	alias string
}

// NewRawTag builds a tag with an NFC-normalized, trimmed alias.
func NewRawTag(kind TagKind, alias string) RawTag {
	return RawTag{Kind: kind, alias: NormalizeText(alias)}
}

// Alias returns the source-native identifier of the tag.
func (t RawTag) Alias() string { return t.alias }

// DefaultGroupID returns the catalog group implied by the tag kind. Generic
// tags have none and need a caller-supplied group.
func (t RawTag) DefaultGroupID() (int, bool) {
	switch t.Kind {
	case TagSetting:
		return GroupSetting, true
	case TagCharacter:
		return GroupCharacter, true
	default:
		return 0, false
	}
}

// Fragment is one remotely fetchable piece of a document. Index is its
// position in the declared order.
type Fragment struct {
	Name  string
	Hash  string
	Index int
}

// Ext returns the file extension of the fragment name, including the dot.
func (f Fragment) Ext() string {
	return strings.ToLower(path.Ext(f.Name))
}

// Record is the structured metadata the resolver returns for one document.
type Record struct {
	ID        string
	Title     string
	Fragments []Fragment
	Artists   []string
	Tags      []RawTag
}

// Authors returns the record's artists, or the single placeholder author when
// the record credits nobody.
func (r *Record) Authors(anonymous string) []string {
	if r == nil || len(r.Artists) == 0 {
		return []string{anonymous}
	}
	out := make([]string, len(r.Artists))
	copy(out, r.Artists)
	return out
}

// Label returns the human-readable job label for the record.
func (r *Record) Label() string {
	if r == nil {
		return ""
	}
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// NormalizeText trims s and converts it to Unicode NFC so that visually
// identical aliases and titles compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
