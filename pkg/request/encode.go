package request

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Payload is an encoded body ready for the transport.
type Payload struct {
	Data        []byte
	ContentType string

	// Boundary is set for multipart payloads.
	Boundary string
}

// Encoder turns a Body into bytes. The zero value reads files from the OS
// and generates a fresh boundary per call.
type Encoder struct {
	FS       filesystem.FileSystem
	Boundary func() string
}

// NewBoundary returns "----Boundary" followed by 32 random hex characters.
func NewBoundary() string {
	id := uuid.New()
	return fmt.Sprintf("%s%x", constants.MultipartBoundaryBase, id[:])
}

// Encode renders b.
func (e Encoder) Encode(b Body) (Payload, error) {
	if b.Kind() != BodyMultipart {
		data, ct, err := b.Plain()
		if err != nil {
			return Payload{}, err
		}
		return Payload{Data: data, ContentType: ct}, nil
	}
	return e.encodeMultipart(b.parts)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (e Encoder) encodeMultipart(parts []Part) (Payload, error) {
	fsys := e.FS
	if fsys == nil {
		fsys = filesystem.Default
	}
	boundary := NewBoundary()
	if e.Boundary != nil {
		boundary = e.Boundary()
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return Payload{}, errors.NewConfigError("boundary", err.Error())
	}

	for _, p := range parts {
		var content []byte
		switch p.Kind {
		case PartText:
			if err := w.WriteField(p.Name, p.Value); err != nil {
				return Payload{}, &errors.MultipartError{Part: p.Name, Wrapped: err}
			}
			continue
		case PartFile:
			data, err := fsys.ReadFile(p.FilePath)
			if err != nil {
				return Payload{}, &errors.MultipartError{Part: p.Name, Wrapped: err}
			}
			content = data
		case PartBytes:
			content = p.Data
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(p.Name), quoteEscaper.Replace(p.fileName())))
		h.Set(constants.HeaderContentType, p.contentType())
		pw, err := w.CreatePart(h)
		if err != nil {
			return Payload{}, &errors.MultipartError{Part: p.Name, Wrapped: err}
		}
		if _, err := pw.Write(content); err != nil {
			return Payload{}, &errors.MultipartError{Part: p.Name, Wrapped: err}
		}
	}

	if err := w.Close(); err != nil {
		return Payload{}, &errors.MultipartError{Part: "", Wrapped: err}
	}
	return Payload{
		Data:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
		Boundary:    boundary,
	}, nil
}
