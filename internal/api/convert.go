package api

import (
	"tankobon/internal/catalog"
	"tankobon/internal/source"
	"tankobon/internal/tags"
)

// FromDocument converts a catalog document to its API representation.
func FromDocument(doc *catalog.Document) Document {
	if doc == nil {
		return Document{}
	}
	dto := Document{
		ID:      doc.ID,
		Title:   doc.Title,
		Path:    doc.Path,
		Authors: doc.Authors,
		Status:  string(doc.Status),
	}
	if dto.Authors == nil {
		dto.Authors = []string{}
	}
	if !doc.CreatedAt.IsZero() {
		dto.CreatedAt = doc.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !doc.UpdatedAt.IsZero() {
		dto.UpdatedAt = doc.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromDocuments converts a slice, never returning nil.
func FromDocuments(docs []catalog.Document) []Document {
	out := make([]Document, 0, len(docs))
	for i := range docs {
		out = append(out, FromDocument(&docs[i]))
	}
	return out
}

// FromTag converts a catalog tag.
func FromTag(tag catalog.Tag) Tag {
	return Tag{ID: tag.ID, Name: tag.Name, GroupID: tag.GroupID, Alias: tag.Alias}
}

// FromTags converts a slice, never returning nil.
func FromTags(in []catalog.Tag) []Tag {
	out := make([]Tag, 0, len(in))
	for _, tag := range in {
		out = append(out, FromTag(tag))
	}
	return out
}

// FromTagGroups converts catalog tag groups.
func FromTagGroups(in []catalog.TagGroup) []TagGroup {
	out := make([]TagGroup, 0, len(in))
	for _, g := range in {
		out = append(out, TagGroup{ID: g.ID, Name: g.Name})
	}
	return out
}

// FromRecord summarizes a source record for search listings.
func FromRecord(rec *source.Record) SearchResult {
	if rec == nil {
		return SearchResult{}
	}
	res := SearchResult{
		SourceDocumentID: rec.ID,
		Title:            rec.Title,
		Artists:          rec.Artists,
		Tags:             make([]string, 0, len(rec.Tags)),
		Fragments:        len(rec.Fragments),
	}
	if res.Artists == nil {
		res.Artists = []string{}
	}
	for _, tag := range rec.Tags {
		res.Tags = append(res.Tags, tag.Alias())
	}
	return res
}

// FromMissing converts reconciler output, never returning nil.
func FromMissing(in []tags.Missing) []MissingTag {
	out := make([]MissingTag, 0, len(in))
	for _, m := range in {
		out = append(out, MissingTag{Name: m.Alias, GroupID: m.GroupID})
	}
	return out
}

// Definitions converts request tag definitions to reconciler input. Aliases
// are normalized the same way raw tags are.
func Definitions(in map[string]TagDefinition) map[string]tags.Definition {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]tags.Definition, len(in))
	for alias, def := range in {
		out[source.NormalizeText(alias)] = tags.Definition{GroupID: def.GroupID, Name: def.Name}
	}
	return out
}
