package storage

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"chatterbox/pkg/errors"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		stored_name TEXT NOT NULL,
		path TEXT NOT NULL,
		mime_type TEXT,
		size INTEGER,
		uploader TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveUpload records an uploaded file
func (s *SQLiteStore) SaveUpload(u *Upload) error {
	if s.db == nil {
		return errors.ErrStorageNotInitialized
	}

	_, err := s.db.Exec(`
		INSERT INTO uploads (id, file_name, stored_name, path, mime_type, size, uploader, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FileName, u.StoredName, u.Path, u.MimeType, u.Size, u.Uploader, u.CreatedAt)
	return err
}

// GetUpload retrieves an upload record by id
func (s *SQLiteStore) GetUpload(id string) (*Upload, error) {
	if s.db == nil {
		return nil, errors.ErrStorageNotInitialized
	}

	u := &Upload{}
	err := s.db.QueryRow(`
		SELECT id, file_name, stored_name, path, mime_type, size, uploader, created_at
		FROM uploads WHERE id = ?`, id).
		Scan(&u.ID, &u.FileName, &u.StoredName, &u.Path, &u.MimeType, &u.Size, &u.Uploader, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUploads returns the most recent uploads, newest first
func (s *SQLiteStore) ListUploads(limit int) ([]*Upload, error) {
	if s.db == nil {
		return nil, errors.ErrStorageNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, file_name, stored_name, path, mime_type, size, uploader, created_at
		FROM uploads ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u := &Upload{}
		if err := rows.Scan(&u.ID, &u.FileName, &u.StoredName, &u.Path, &u.MimeType, &u.Size, &u.Uploader, &u.CreatedAt); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
