package request

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// BodyKind tags a Body variant.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyText
	BodyJSON
	BodyBytes
	BodyForm
	BodyMultipart
)

func (k BodyKind) String() string {
	switch k {
	case BodyText:
		return "text"
	case BodyJSON:
		return "json"
	case BodyBytes:
		return "bytes"
	case BodyForm:
		return "form"
	case BodyMultipart:
		return "multipart"
	default:
		return "empty"
	}
}

// Pair is one ordered form field.
type Pair struct {
	Key   string
	Value string
}

// Body is a tagged request body. Construct it with Empty, Text, JSON, Bytes,
// Form or Multipart; the zero value is Empty.
type Body struct {
	kind  BodyKind
	text  string
	json  any
	bytes []byte
	form  []Pair
	parts []Part
}

// Empty has no payload.
func Empty() Body { return Body{} }

// Text sends s as text/plain.
func Text(s string) Body { return Body{kind: BodyText, text: s} }

// JSON sends v encoded with encoding/json.
func JSON(v any) Body { return Body{kind: BodyJSON, json: v} }

// Bytes sends b as application/octet-stream.
func Bytes(b []byte) Body { return Body{kind: BodyBytes, bytes: append([]byte(nil), b...)} }

// Form sends pairs url-encoded, in order.
func Form(pairs ...Pair) Body { return Body{kind: BodyForm, form: append([]Pair(nil), pairs...)} }

// Multipart sends parts as multipart/form-data, in order.
func Multipart(parts ...Part) Body {
	return Body{kind: BodyMultipart, parts: append([]Part(nil), parts...)}
}

// Kind returns the variant tag.
func (b Body) Kind() BodyKind { return b.kind }

// IsEmpty reports whether b carries no payload.
func (b Body) IsEmpty() bool { return b.kind == BodyEmpty }

// FormPairs returns a copy of the form fields.
func (b Body) FormPairs() []Pair { return append([]Pair(nil), b.form...) }

// Parts returns a copy of the multipart parts.
func (b Body) Parts() []Part { return append([]Part(nil), b.parts...) }

// WithFormPair returns a Form body with key=value appended. An Empty body
// becomes a one-field Form.
func (b Body) WithFormPair(key, value string) (Body, error) {
	switch b.kind {
	case BodyEmpty:
		return Form(Pair{key, value}), nil
	case BodyForm:
		return Form(append(b.FormPairs(), Pair{key, value})...), nil
	default:
		return b, errors.NewConfigError("body", "cannot add a form field to a "+b.kind.String()+" body")
	}
}

// HasFormKey reports whether a Form body already carries key.
func (b Body) HasFormKey(key string) bool {
	for _, p := range b.form {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Plain encodes every variant except Multipart, which needs an Encoder for
// its file parts and boundary.
func (b Body) Plain() ([]byte, string, error) {
	switch b.kind {
	case BodyEmpty:
		return nil, "", nil
	case BodyText:
		return []byte(b.text), constants.MIMETextPlain, nil
	case BodyBytes:
		return append([]byte(nil), b.bytes...), constants.MIMEOctetStream, nil
	case BodyJSON:
		data, err := json.Marshal(b.json)
		if err != nil {
			return nil, "", &errors.JSONError{Op: "encode", Wrapped: err}
		}
		return data, constants.MIMEApplicationJSON, nil
	case BodyForm:
		return []byte(encodeForm(b.form)), constants.MIMEApplicationFormURLEncoded, nil
	default:
		return nil, "", errors.NewConfigError("body", "multipart bodies must be encoded with an Encoder")
	}
}

func encodeForm(pairs []Pair) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}
