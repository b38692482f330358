package request

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/ideaspaper/reqkit/internal/constants"
)

// PartKind tags a multipart Part.
type PartKind int

const (
	PartText PartKind = iota
	PartFile
	PartBytes
)

// Part is one section of a multipart body.
type Part struct {
	Kind PartKind
	Name string

	// Value is the content of a text part.
	Value string

	// FilePath is read when the body is encoded.
	FilePath string

	// Data is the content of a bytes part.
	Data []byte

	// FileName defaults to the last element of FilePath.
	FileName string

	// ContentType defaults to a guess from the file extension.
	ContentType string
}

// TextPart is a plain form field.
func TextPart(name, value string) Part {
	return Part{Kind: PartText, Name: name, Value: value}
}

// FilePart uploads the file at path.
func FilePart(name, path string) Part {
	return Part{Kind: PartFile, Name: name, FilePath: path}
}

// BytesPart uploads in-memory data under fileName.
func BytesPart(name, fileName string, data []byte) Part {
	return Part{Kind: PartBytes, Name: name, FileName: fileName, Data: append([]byte(nil), data...)}
}

// WithFileName overrides the filename sent for a file or bytes part.
func (p Part) WithFileName(name string) Part {
	p.FileName = name
	return p
}

// WithContentType overrides the part's Content-Type.
func (p Part) WithContentType(ct string) Part {
	p.ContentType = ct
	return p
}

func (p Part) fileName() string {
	if p.FileName != "" {
		return p.FileName
	}
	if p.FilePath != "" {
		return filepath.Base(p.FilePath)
	}
	return ""
}

func (p Part) contentType() string {
	if p.ContentType != "" {
		return p.ContentType
	}
	return ContentTypeForFile(p.fileName())
}

// extensionTypes covers extensions the mime package may not know on a
// system without a mime.types file.
var extensionTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"zip":  "application/zip",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
}

// ContentTypeForFile guesses a MIME type from name's extension, without
// parameters. It asks the mime package first, then a small built-in table,
// and falls back to application/octet-stream.
func ContentTypeForFile(name string) string {
	ext := filepath.Ext(name)
	if ct := mime.TypeByExtension(ext); ct != "" {
		mediaType, _, _ := strings.Cut(ct, ";")
		return strings.TrimSpace(mediaType)
	}
	if ct, ok := extensionTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return ct
	}
	return constants.MIMEOctetStream
}
