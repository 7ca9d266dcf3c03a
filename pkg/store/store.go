package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/CTAG07/Tessella/pkg/template"
)

// ErrNotFound is returned when a named template does not exist in the store.
var ErrNotFound = errors.New("template not found")

// SetupSchema initializes the template table in the provided database. This
// function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    name TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() runs first and the rollback
	// does nothing. If it fails, this cleans up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaTemplates); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// TemplateInfo holds the metadata for one stored template.
type TemplateInfo struct {
	Name      string
	UpdatedAt time.Time
}

// ExportedTemplate is the serializable representation of one stored
// template, used for JSON-based import and export.
type ExportedTemplate struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	UpdatedAt string `json:"updated_at"`
}

// Store is a named template repository backed by a SQL database. It holds
// the database connection and prepared statements for efficient repeated
// access. All methods are safe for concurrent use.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	stmtGet    *sql.Stmt
	stmtPut    *sql.Stmt
	stmtDelete *sql.Stmt
	stmtList   *sql.Stmt
}

// NewStore creates a Store over a database that has already been prepared
// with SetupSchema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}

	var err error
	if s.stmtGet, err = db.Prepare("SELECT source FROM templates WHERE name = ?"); err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}
	if s.stmtPut, err = db.Prepare(
		"INSERT INTO templates (name, source, updated_at) VALUES (?, ?, ?) " +
			"ON CONFLICT(name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at"); err != nil {
		return nil, fmt.Errorf("failed to prepare put statement: %w", err)
	}
	if s.stmtDelete, err = db.Prepare("DELETE FROM templates WHERE name = ?"); err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	if s.stmtList, err = db.Prepare("SELECT name, updated_at FROM templates ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return s, nil
}

// Close releases the prepared statements. The database connection itself is
// owned by the caller and is not closed.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtPut.Close()
	_ = s.stmtDelete.Close()
	_ = s.stmtList.Close()
}

// Get returns the source of the named template, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var source string
	err := s.stmtGet.QueryRowContext(ctx, name).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return source, nil
}

// Put inserts or replaces the named template.
func (s *Store) Put(ctx context.Context, name, source string) error {
	updatedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.stmtPut.ExecContext(ctx, name, source, updatedAt); err != nil {
		return fmt.Errorf("failed to store template %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "Template stored",
		slog.String("name", name),
		slog.Int("source_len", len(source)),
	)
	return nil
}

// Delete removes the named template. Deleting a template that does not
// exist returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	result, err := s.stmtDelete.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to delete template %q: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.logger.InfoContext(ctx, "Template deleted", slog.String("name", name))
	return nil
}

// List returns the metadata of all stored templates, ordered by name.
func (s *Store) List(ctx context.Context) ([]TemplateInfo, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var infos []TemplateInfo
	for rows.Next() {
		var info TemplateInfo
		var updatedAt string
		if err = rows.Scan(&info.Name, &updatedAt); err != nil {
			return nil, err
		}
		// Timestamps were written by Put in RFC 3339; imported rows may
		// carry whatever the export had, so a parse failure just leaves
		// the zero time.
		info.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		infos = append(infos, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Export serializes all stored templates as JSON and writes them to the
// provided io.Writer. This is useful for backups or for moving templates
// between databases.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, source, updated_at FROM templates ORDER BY name")
	if err != nil {
		return err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var exported []ExportedTemplate
	for rows.Next() {
		var t ExportedTemplate
		if err = rows.Scan(&t.Name, &t.Source, &t.UpdatedAt); err != nil {
			return err
		}
		exported = append(exported, t)
	}
	if err = rows.Err(); err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err = encoder.Encode(exported); err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}

	s.logger.InfoContext(ctx, "Templates exported", slog.Int("count", len(exported)))
	return nil
}

// Import reads a JSON export produced by Export and inserts every template,
// replacing existing templates with the same name. The import runs in a
// single transaction.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	var exported []ExportedTemplate
	if err := json.NewDecoder(r).Decode(&exported); err != nil {
		return fmt.Errorf("failed to decode templates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, t := range exported {
		updatedAt := t.UpdatedAt
		if updatedAt == "" {
			updatedAt = time.Now().UTC().Format(time.RFC3339)
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO templates (name, source, updated_at) VALUES (?, ?, ?) "+
				"ON CONFLICT(name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at",
			t.Name, t.Source, updatedAt); err != nil {
			return fmt.Errorf("failed to import template %q: %w", t.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Templates imported", slog.Int("count", len(exported)))
	return nil
}

// resolver adapts a Store to the template.IncludeResolver interface, so
// stored templates can include each other by name.
type resolver struct {
	store *Store
	opts  []template.Option
}

// Resolver returns an include resolver backed by this store. The given
// options are applied to every resolved template, after the resolver and
// filename options the store sets itself.
func (s *Store) Resolver(opts ...template.Option) template.IncludeResolver {
	return &resolver{store: s, opts: opts}
}

func (r *resolver) Get(name string) (*template.Template, error) {
	source, err := r.store.Get(context.Background(), name)
	if err != nil {
		return nil, err
	}
	opts := append([]template.Option{
		template.WithResolver(r),
		template.WithFilename(name),
	}, r.opts...)
	return template.New(source, opts...), nil
}
