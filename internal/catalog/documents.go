package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const documentColumns = "d.id, d.title, d.path, d.status, d.created_at, d.updated_at"

// CreateDocument registers a pending document with its ordered author list
// and returns the new id.
func (s *Store) CreateDocument(ctx context.Context, title, path string, authors []string) (int64, error) {
	ctx = ensureContext(ctx)
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errors.New("create document: title is required")
	}
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("create document: path is required")
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := tx.ExecContext(ctx,
			"INSERT INTO documents (title, path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			title, path, StatusPending, now, now,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		for i, author := range authors {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO document_authors (document_id, position, name) VALUES (?, ?, ?)",
				id, i, strings.TrimSpace(author),
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("create document %q: %w", title, err)
	}
	return id, nil
}

// LinkDocumentTag attaches a tag to a document. Linking twice is a no-op.
func (s *Store) LinkDocumentTag(ctx context.Context, documentID, tagID int64) error {
	if _, err := s.execWithRetry(ctx,
		"INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)",
		documentID, tagID,
	); err != nil {
		return fmt.Errorf("link tag %d to document %d: %w", tagID, documentID, err)
	}
	return nil
}

// LinkDocumentSource records that a document came from the given source
// record. A source record can be linked to at most one document.
func (s *Store) LinkDocumentSource(ctx context.Context, documentID int64, systemID int, sourceDocumentID string) error {
	_, err := s.execWithRetry(ctx,
		"INSERT INTO document_sources (document_id, source_system_id, source_document_id) VALUES (?, ?, ?)",
		documentID, systemID, sourceDocumentID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("link source %d/%s to document %d: %w", systemID, sourceDocumentID, documentID, ErrSourceLinked)
	}
	if err != nil {
		return fmt.Errorf("link source %d/%s to document %d: %w", systemID, sourceDocumentID, documentID, err)
	}
	return nil
}

// DocumentBySource returns the document linked to a source record, or nil.
func (s *Store) DocumentBySource(ctx context.Context, systemID int, sourceDocumentID string) (*Document, error) {
	doc, err := s.scanDocument(ctx,
		"SELECT "+documentColumns+" FROM documents d JOIN document_sources ds ON ds.document_id = d.id WHERE ds.source_system_id = ? AND ds.source_document_id = ?",
		systemID, sourceDocumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup document by source %d/%s: %w", systemID, sourceDocumentID, err)
	}
	return doc, nil
}

// Document returns the document with the given id, or nil.
func (s *Store) Document(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.scanDocument(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("lookup document %d: %w", id, err)
	}
	return doc, nil
}

// MarkDocumentReady flips a pending document to ready.
func (s *Store) MarkDocumentReady(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE documents SET status = ?, updated_at = ? WHERE id = ?",
		StatusReady, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("mark document %d ready: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark document %d ready: %w", id, sql.ErrNoRows)
	}
	return nil
}

// PendingDocuments lists documents whose archived file was never confirmed.
// Outside of an in-flight commit each one needs manual reconciliation.
func (s *Store) PendingDocuments(ctx context.Context) ([]Document, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.status = ? ORDER BY d.id", StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	var docs []Document
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range docs {
		if docs[i].Authors, err = s.documentAuthors(ctx, docs[i].ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// SourceLinks lists the source records linked to a document.
func (s *Store) SourceLinks(ctx context.Context, documentID int64) ([]SourceLink, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT document_id, source_system_id, source_document_id FROM document_sources WHERE document_id = ?", documentID)
	if err != nil {
		return nil, fmt.Errorf("list source links: %w", err)
	}
	defer rows.Close()

	var links []SourceLink
	for rows.Next() {
		var link SourceLink
		if err := rows.Scan(&link.DocumentID, &link.SourceSystemID, &link.SourceDocumentID); err != nil {
			return nil, fmt.Errorf("scan source link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *Store) scanDocument(ctx context.Context, query string, args ...any) (*Document, error) {
	var doc *Document
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		doc, scanErr = scanDocumentRow(row)
		return scanErr
	}, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Authors, err = s.documentAuthors(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) documentAuthors(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT name FROM document_authors WHERE document_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("list document authors: %w", err)
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan document author: %w", err)
		}
		authors = append(authors, name)
	}
	return authors, rows.Err()
}

func scanDocumentRow(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc        Document
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&doc.ID, &doc.Title, &doc.Path, &status, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	doc.Status = DocumentStatus(status)
	doc.CreatedAt = parseTime(createdRaw)
	doc.UpdatedAt = parseTime(updatedRaw)
	return &doc, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}
