// Package output renders responses for the command line.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Format selects how Render prints an exchange.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatHeaders Format = "headers"
)

// Formats lists every accepted format name.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatHeaders}

// ParseFormat maps a name to a Format. The empty string is FormatText.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", errors.NewConfigError("format", fmt.Sprintf("unknown output format %q", s))
}

// document is the structured form used by the json and yaml formats.
type document struct {
	Status     int                 `json:"status" yaml:"status"`
	StatusText string              `json:"statusText" yaml:"statusText"`
	Proto      string              `json:"proto,omitempty" yaml:"proto,omitempty"`
	URL        string              `json:"url,omitempty" yaml:"url,omitempty"`
	Redirects  int                 `json:"redirects" yaml:"redirects"`
	ElapsedMs  int64               `json:"elapsedMs" yaml:"elapsedMs"`
	Headers    map[string][]string `json:"headers" yaml:"headers"`
	Body       any                 `json:"body,omitempty" yaml:"body,omitempty"`
}

func documentOf(ex *Exchange) document {
	doc := document{
		Status:     ex.StatusCode,
		StatusText: statusText(ex),
		Proto:      ex.Proto,
		URL:        ex.URL,
		Redirects:  ex.Redirects,
		ElapsedMs:  ex.Elapsed.Milliseconds(),
		Headers:    make(map[string][]string, ex.Header.Len()),
	}
	for name, value := range ex.Header.All() {
		doc.Headers[name] = append(doc.Headers[name], value)
	}
	doc.Body = bodyValue(ex)
	return doc
}

// bodyValue embeds a JSON body as structured data and anything else as a
// string. Non UTF-8 bodies are omitted.
func bodyValue(ex *Exchange) any {
	if len(ex.Body) == 0 {
		return nil
	}
	if strings.Contains(ex.ContentType(), "json") {
		var v any
		if err := json.Unmarshal(ex.Body, &v); err == nil {
			return v
		}
	}
	if !utf8.Valid(ex.Body) {
		return fmt.Sprintf("<%d bytes of binary data>", len(ex.Body))
	}
	return string(ex.Body)
}

func marshalYAML(doc document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode yaml output: %w", err)
	}
	return data, nil
}
