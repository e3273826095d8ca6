package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/prism/internal/model"
)

// DatabaseFile is the ledger file name.
const DatabaseFile = "prism.db"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found in ledger")

// Artifact kinds.
const (
	KindRaw      = "raw"
	KindRedacted = "redacted"
	KindOCRText  = "ocr_text"
	KindOCRPDF   = "ocr_pdf"
)

// LedgerDB stores sessions, documents and artifacts.
type LedgerDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures LedgerDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the ledger in dbDir.
func Open(dbDir string, opts Options) (*LedgerDB, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("ledger not found at %s: %w", dbPath, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check ledger path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ldb := &LedgerDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := ldb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return ldb, nil
}

// Path returns the database file path.
func (l *LedgerDB) Path() string {
	return l.dbPath
}

// Close closes the database connection.
func (l *LedgerDB) Close() error {
	return l.db.Close()
}

func (l *LedgerDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started TEXT NOT NULL,
		ended TEXT,
		backend TEXT NOT NULL,
		device TEXT,
		ocr INTEGER NOT NULL DEFAULT 0,
		duplex INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		wid TEXT NOT NULL,
		form_type INTEGER NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		warnings TEXT,
		steps TEXT,
		created TEXT NOT NULL,
		finished TEXT,
		document_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_wid ON documents(wid);
	CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id),
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		side TEXT NOT NULL,
		seq INTEGER NOT NULL,
		sha256 TEXT,
		normalized INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_document ON artifacts(document_id);
	`
	_, err := l.db.ExecContext(context.Background(), schema)
	return err
}

// Session is a ledger session row.
type Session struct {
	ID      string
	Started time.Time
	Ended   time.Time
	Backend string
	Device  string
	OCR     bool
	Duplex  bool
}

// StartSession records the start of s.
func (l *LedgerDB) StartSession(ctx context.Context, s Session) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started, backend, device, ocr, duplex) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, formatTime(s.Started), s.Backend, s.Device, s.OCR, s.Duplex)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// EndSession records the end time of session id.
func (l *LedgerDB) EndSession(ctx context.Context, id string, ended time.Time) error {
	return l.execOne(ctx, "end session", `UPDATE sessions SET ended = ? WHERE id = ?`, formatTime(ended), id)
}

func (l *LedgerDB) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	}
	return nil
}

// GetSession returns session id.
func (l *LedgerDB) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	var started string
	var ended, device sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT id, started, ended, backend, device, ocr, duplex FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &started, &ended, &s.Backend, &device, &s.OCR, &s.Duplex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.Started = parseTimestamp(started)
	if ended.Valid {
		s.Ended = parseTimestamp(ended.String)
	}
	s.Device = device.String
	return &s, nil
}

// SaveDocument inserts doc and its artifacts in one transaction and sets
// doc.ID.
func (l *LedgerDB) SaveDocument(ctx context.Context, doc *model.Document) (err error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	warnings, err := json.Marshal(nonNil(doc.Warnings))
	if err != nil {
		return fmt.Errorf("failed to serialize warnings: %w", err)
	}
	steps, err := json.Marshal(nonNil(doc.PerformedSteps))
	if err != nil {
		return fmt.Errorf("failed to serialize steps: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var finished any
	if !doc.FinishedAt.IsZero() {
		finished = formatTime(doc.FinishedAt)
	}
	res, err := tx.ExecContext(ctx, `
	INSERT INTO documents (session_id, wid, form_type, date, status, error, warnings, steps, created, finished, document_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.SessionID,
		doc.Request.WID.String(),
		int(doc.Request.FormType),
		doc.Request.Date.Format(model.DateLayout),
		string(doc.Status),
		doc.ErrorMessage,
		string(warnings),
		string(steps),
		formatTime(doc.StartedAt),
		finished,
		string(docJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	for _, page := range doc.Pages {
		for _, a := range pageArtifacts(page) {
			if _, err = tx.ExecContext(ctx, `
			INSERT INTO artifacts (document_id, kind, path, side, seq, sha256, normalized)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, a.Kind, a.Path, a.Side.String(), a.Sequence, a.SHA256, a.Normalized,
			); err != nil {
				return fmt.Errorf("failed to save artifact %s: %w", a.Path, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	doc.ID = id
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Artifact is a ledger artifact row.
type Artifact struct {
	DocumentID int64
	Kind       string
	Path       string
	Side       model.Side
	Sequence   int
	SHA256     string
	Normalized bool
}

func pageArtifacts(p *model.Page) []Artifact {
	var out []Artifact
	add := func(kind, path, sum string, normalized bool) {
		if path == "" {
			return
		}
		out = append(out, Artifact{Kind: kind, Path: path, Side: p.Side, Sequence: p.Sequence(), SHA256: sum, Normalized: normalized})
	}
	add(KindRaw, p.RawPath, p.RawSHA256, false)
	add(KindRedacted, p.RedactedPath, p.RedactedSHA256, p.Normalized)
	add(KindOCRText, p.TextPath, "", false)
	add(KindOCRPDF, p.PDFPath, "", false)
	return out
}

// ArtifactsFor returns the artifacts of document id in sequence order.
func (l *LedgerDB) ArtifactsFor(ctx context.Context, documentID int64) ([]Artifact, error) {
	rows, err := l.db.QueryContext(ctx, `
	SELECT document_id, kind, path, side, seq, sha256, normalized
	FROM artifacts WHERE document_id = ?
	ORDER BY seq, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var side string
		var sum sql.NullString
		if err := rows.Scan(&a.DocumentID, &a.Kind, &a.Path, &side, &a.Sequence, &sum, &a.Normalized); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := a.Side.UnmarshalText([]byte(side)); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", a.Path, err)
		}
		a.SHA256 = sum.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// DocumentRecord summarizes one stored document.
type DocumentRecord struct {
	ID        int64
	SessionID string
	WID       model.WID
	FormType  model.FormType
	Date      string
	Status    model.DocumentStatus
	Error     string
	Warnings  []string
	Steps     []string
	Created   time.Time
	Finished  time.Time
	Pages     int
	Redacted  int
}

// DocumentFilter narrows ListDocuments. Zero fields match everything.
type DocumentFilter struct {
	WID       model.WID
	SessionID string
	Status    model.DocumentStatus
	Since     time.Time
	Limit     int
}

// ListDocuments returns matching documents, newest first.
func (l *LedgerDB) ListDocuments(ctx context.Context, filter DocumentFilter) ([]DocumentRecord, error) {
	query := `
	SELECT d.id, d.session_id, d.wid, d.form_type, d.date, d.status, d.error, d.warnings, d.steps, d.created, d.finished,
		(SELECT COUNT(*) FROM artifacts a WHERE a.document_id = d.id AND a.kind = 'raw'),
		(SELECT COUNT(*) FROM artifacts a WHERE a.document_id = d.id AND a.kind = 'redacted')
	FROM documents d
	WHERE 1=1
	`
	args := make([]any, 0)
	if filter.WID != "" {
		query += " AND d.wid = ?"
		args = append(args, filter.WID.String())
	}
	if filter.SessionID != "" {
		query += " AND d.session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += " AND d.status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += " AND d.created >= ?"
		args = append(args, formatTime(filter.Since))
	}
	query += " ORDER BY d.created DESC, d.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var r DocumentRecord
		var wid, status, created string
		var errMsg, warnings, steps, finished sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &wid, &r.FormType, &r.Date, &status, &errMsg,
			&warnings, &steps, &created, &finished, &r.Pages, &r.Redacted); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		r.WID = model.WID(wid)
		r.Status = model.DocumentStatus(status)
		r.Error = errMsg.String
		r.Created = parseTimestamp(created)
		if finished.Valid {
			r.Finished = parseTimestamp(finished.String)
		}
		r.Warnings = decodeStrings(warnings)
		r.Steps = decodeStrings(steps)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDocument returns the full stored document id.
func (l *LedgerDB) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	var docJSON string
	err := l.db.QueryRowContext(ctx, `SELECT document_json FROM documents WHERE id = ?`, id).Scan(&docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	doc.ID = id
	return &doc, nil
}

func decodeStrings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with the known formats and returns the zero time
// if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
