package storage

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"chatterbox/pkg/errors"
)

// MySQLStore implements Store using a MySQL backend
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store. The DSN must include
// parseTime=true so timestamps scan into time.Time.
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	store := &MySQLStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database schema
func (s *MySQLStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id VARCHAR(64) PRIMARY KEY,
		file_name VARCHAR(512) NOT NULL,
		stored_name VARCHAR(512) NOT NULL,
		path VARCHAR(1024) NOT NULL,
		mime_type VARCHAR(255),
		size BIGINT,
		uploader VARCHAR(255),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_uploads_created_at (created_at)
	)`

	_, err := s.db.Exec(schema)
	return err
}

// SaveUpload records an uploaded file
func (s *MySQLStore) SaveUpload(u *Upload) error {
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
func (s *MySQLStore) GetUpload(id string) (*Upload, error) {
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
func (s *MySQLStore) ListUploads(limit int) ([]*Upload, error) {
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
func (s *MySQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
