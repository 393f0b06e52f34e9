package storage

import "time"

// Upload is one stored media file's index record. The bytes themselves
// live on disk under the uploads directory; this record is what the
// upload endpoint hands back to clients so messages can reference the
// file by URL.
type Upload struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"` // original client-side name
	StoredName string    `json:"stored_name"` // unique name on disk
	Path       string    `json:"path"` // public URL path
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Uploader   string    `json:"uploader,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the interface for the upload index
type Store interface {
	// SaveUpload records an uploaded file
	SaveUpload(u *Upload) error
	// GetUpload retrieves an upload record by id
	GetUpload(id string) (*Upload, error)
	// ListUploads returns the most recent uploads, newest first
	ListUploads(limit int) ([]*Upload, error)

	// Lifecycle
	Close() error
}
