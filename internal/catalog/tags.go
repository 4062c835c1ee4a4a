package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TagByAlias returns the tag with the given alias, or nil when none exists.
func (s *Store) TagByAlias(ctx context.Context, alias string) (*Tag, error) {
	var tag Tag
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&tag.ID, &tag.Name, &tag.GroupID, &tag.Alias)
	}, "SELECT id, name, group_id, alias FROM tags WHERE alias = ?", alias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tag %q: %w", alias, err)
	}
	return &tag, nil
}

// CreateTag inserts tag keyed by its alias. When the alias already exists the
// stored row is returned unchanged.
func (s *Store) CreateTag(ctx context.Context, tag Tag) (*Tag, error) {
	tag.Alias = strings.TrimSpace(tag.Alias)
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Alias == "" {
		return nil, errors.New("create tag: alias is required")
	}
	if tag.Name == "" {
		return nil, fmt.Errorf("create tag %q: name is required", tag.Alias)
	}
	if _, err := s.execWithRetry(ctx,
		"INSERT INTO tags (name, group_id, alias) VALUES (?, ?, ?) ON CONFLICT(alias) DO NOTHING",
		tag.Name, tag.GroupID, tag.Alias,
	); err != nil {
		return nil, fmt.Errorf("create tag %q: %w", tag.Alias, err)
	}
	stored, err := s.TagByAlias(ctx, tag.Alias)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("create tag %q: row missing after insert", tag.Alias)
	}
	return stored, nil
}

// TagGroups lists every tag group ordered by id.
func (s *Store) TagGroups(ctx context.Context) ([]TagGroup, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM tag_groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tag groups: %w", err)
	}
	defer rows.Close()

	var groups []TagGroup
	for rows.Next() {
		var g TagGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan tag group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DocumentTags lists the tags linked to a document ordered by group then name.
func (s *Store) DocumentTags(ctx context.Context, documentID int64) ([]Tag, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.name, t.group_id, t.alias
        FROM document_tags dt JOIN tags t ON t.id = dt.tag_id
        WHERE dt.document_id = ?
        ORDER BY t.group_id, t.name`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.GroupID, &tag.Alias); err != nil {
			return nil, fmt.Errorf("scan document tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
