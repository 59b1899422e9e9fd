package entry

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DefaultUploadFilename names in-memory uploads when no filename is given.
const DefaultUploadFilename = "omCloudService-0.xml"

// SizeNullTerminated makes an in-memory upload end at its first NUL byte.
const SizeNullTerminated = -1

// Upload is the content source of the "data" part: FileUpload or
// MemoryUpload.
type Upload interface {
	// Filename is the name announced for the part.
	Filename() string
	isUpload()
}

// FileUpload streams the part content from a file.
type FileUpload struct {
	Path string
}

// Filename returns the base name of the file.
func (u FileUpload) Filename() string { return filepath.Base(u.Path) }

func (FileUpload) isUpload() {}

// MemoryUpload sends bytes held in memory.
type MemoryUpload struct {
	Data []byte
	// Size limits Data to its first Size bytes, or to the first NUL byte
	// when SizeNullTerminated.
	Size int
	// Name is the announced filename.
	Name string
}

// Filename returns the announced name, DefaultUploadFilename when empty.
func (u MemoryUpload) Filename() string {
	if u.Name == "" {
		return DefaultUploadFilename
	}
	return u.Name
}

// Content returns the bytes that will be sent.
func (u MemoryUpload) Content() []byte {
	if u.Size < 0 {
		if i := bytes.IndexByte(u.Data, 0); i >= 0 {
			return u.Data[:i]
		}
		return u.Data
	}
	return u.Data[:min(u.Size, len(u.Data))]
}

func (MemoryUpload) isUpload() {}

// MimeType derives the part Content-Type as "image/" followed by the
// filename extension without its dot. The image/ prefix is part of the wire
// contract and applies to every payload kind.
func MimeType(filename string) string {
	return "image/" + strings.TrimPrefix(filepath.Ext(filename), ".")
}
