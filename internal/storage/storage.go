package storage

import (
	"io"
	"mime/multipart"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage is the blob-store contract the pipeline depends on. Keys
// returned by the save methods are opaque references.
type Storage interface {
	SaveFile(file multipart.File, info FileInfo) (string, error)
	SaveBytes(data []byte, ext string) (string, error)
	OpenFile(key string) (io.ReadSeekCloser, error)
	DeleteFile(key string) error
	// FilePath resolves a key to a local filesystem path for tools that
	// need direct access (the frame extractor's ffmpeg subprocess).
	FilePath(key string) string
	PublicURL(key string) string
}
