package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/internal/stringutil"
	"github.com/ideaspaper/reqkit/pkg/response"
)

// Exchange is a response whose body has already been read.
type Exchange struct {
	Proto      string
	StatusCode int
	Status     string
	Header     httputil.Header
	Body       []byte
	URL        string
	Redirects  int
	Elapsed    time.Duration
}

// Capture reads the body of resp and returns it as an Exchange.
// The response is closed either way.
func Capture(resp *response.Response) (*Exchange, error) {
	defer resp.Close()

	body, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	ex := &Exchange{
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
		Redirects:  resp.Redirects,
		Elapsed:    resp.Elapsed,
	}
	if resp.EffectiveURL != nil {
		ex.URL = resp.EffectiveURL.String()
	}
	return ex, nil
}

// ContentType returns the media type without parameters, lower-cased.
func (e *Exchange) ContentType() string {
	ct, _, _ := strings.Cut(e.Header.Get("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Formatter renders exchanges for a terminal.
type Formatter struct {
	colorEnabled bool

	statusSuccess  *color.Color
	statusRedirect *color.Color
	statusError    *color.Color
	headerName     *color.Color
	headerValue    *color.Color
	jsonKey        *color.Color
	jsonString     *color.Color
	jsonNumber     *color.Color
	jsonBool       *color.Color
	jsonNull       *color.Color
	dim            *color.Color
	errorColor     *color.Color
	successColor   *color.Color
	infoColor      *color.Color
}

// NewFormatter creates a formatter. With colorEnabled false every color is
// disabled on this formatter only; the global color state is left alone.
func NewFormatter(colorEnabled bool) *Formatter {
	f := &Formatter{
		colorEnabled:   colorEnabled,
		statusSuccess:  color.New(color.FgGreen, color.Bold),
		statusRedirect: color.New(color.FgYellow, color.Bold),
		statusError:    color.New(color.FgRed, color.Bold),
		headerName:     color.New(color.FgCyan),
		headerValue:    color.New(color.FgWhite),
		jsonKey:        color.New(color.FgCyan),
		jsonString:     color.New(color.FgGreen),
		jsonNumber:     color.New(color.FgYellow),
		jsonBool:       color.New(color.FgMagenta),
		jsonNull:       color.New(color.FgRed),
		dim:            color.New(color.FgHiBlack),
		errorColor:     color.New(color.FgRed),
		successColor:   color.New(color.FgGreen),
		infoColor:      color.New(color.FgCyan),
	}
	for _, c := range f.palette() {
		if colorEnabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

func (f *Formatter) palette() []*color.Color {
	return []*color.Color{
		f.statusSuccess, f.statusRedirect, f.statusError,
		f.headerName, f.headerValue,
		f.jsonKey, f.jsonString, f.jsonNumber, f.jsonBool, f.jsonNull,
		f.dim, f.errorColor, f.successColor, f.infoColor,
	}
}

// Options select what the text format prints.
type Options struct {
	Format      Format
	ShowHeaders bool
	ShowBody    bool
	ShowTiming  bool
}

// Render writes ex to w in the requested format.
func (f *Formatter) Render(w io.Writer, ex *Exchange, opts Options) error {
	var out string
	switch opts.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(documentOf(ex), "", "  ")
		if err != nil {
			return fmt.Errorf("encode json output: %w", err)
		}
		out = string(data) + "\n"
	case FormatYAML:
		data, err := marshalYAML(documentOf(ex))
		if err != nil {
			return err
		}
		out = string(data)
	case FormatHeaders:
		out = f.FormatStatusLine(ex) + "\n" + f.FormatHeaders(ex)
	default:
		out = f.FormatExchange(ex, opts)
	}
	_, err := io.WriteString(w, out)
	return err
}

// FormatExchange renders the text format.
func (f *Formatter) FormatExchange(ex *Exchange, opts Options) string {
	var sb strings.Builder

	if opts.ShowHeaders {
		sb.WriteString(f.FormatStatusLine(ex))
		sb.WriteString("\n")
		sb.WriteString(f.FormatHeaders(ex))
		if opts.ShowBody && len(ex.Body) > 0 {
			sb.WriteString("\n")
		}
	}
	if opts.ShowBody && len(ex.Body) > 0 {
		sb.WriteString(f.FormatBody(ex))
		sb.WriteString("\n")
	}
	if opts.ShowTiming {
		sb.WriteString(f.FormatTiming(ex))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatStatusLine returns e.g. "HTTP/1.1 200 OK", colored by status class.
func (f *Formatter) FormatStatusLine(ex *Exchange) string {
	proto := ex.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	return f.statusColor(ex.StatusCode).Sprintf("%s %s", proto, statusText(ex))
}

func statusText(ex *Exchange) string {
	code := strconv.Itoa(ex.StatusCode)
	switch {
	case ex.Status == "" || ex.Status == code:
		if text := http.StatusText(ex.StatusCode); text != "" {
			return code + " " + text
		}
		return code
	case strings.HasPrefix(ex.Status, code):
		return ex.Status
	default:
		return code + " " + ex.Status
	}
}

func (f *Formatter) statusColor(code int) *color.Color {
	switch {
	case code >= 400:
		return f.statusError
	case code >= 300:
		return f.statusRedirect
	default:
		return f.statusSuccess
	}
}

// FormatHeaders renders one "Name: value" line per header value, in
// received order.
func (f *Formatter) FormatHeaders(ex *Exchange) string {
	var sb strings.Builder
	for name, value := range ex.Header.All() {
		sb.WriteString(f.headerName.Sprint(name))
		sb.WriteString(": ")
		sb.WriteString(f.headerValue.Sprint(value))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatBody pretty-prints JSON and XML bodies. Other bodies are returned as is.
func (f *Formatter) FormatBody(ex *Exchange) string {
	body := string(ex.Body)
	ct := ex.ContentType()
	switch {
	case strings.Contains(ct, "json"):
		return f.formatJSON(body)
	case strings.Contains(ct, "xml"):
		return formatXML(body)
	default:
		return body
	}
}

// FormatTiming renders the elapsed time, body size and redirect count.
func (f *Formatter) FormatTiming(ex *Exchange) string {
	parts := []string{
		"Elapsed: " + ex.Elapsed.Round(time.Millisecond).String(),
		"Size: " + stringutil.FormatBytes(int64(len(ex.Body))),
	}
	if ex.Redirects > 0 {
		parts = append(parts, fmt.Sprintf("Redirects: %d", ex.Redirects))
	}
	return f.dim.Sprint("(" + strings.Join(parts, ", ") + ")")
}

func (f *Formatter) formatJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(body)), "", "  "); err != nil {
		return body
	}
	if !f.colorEnabled {
		return buf.String()
	}
	return f.colorizeJSON(buf.String())
}

// colorizeJSON colors indented JSON token by token. Input is assumed valid.
func (f *Formatter) colorizeJSON(src string) string {
	var sb strings.Builder
	sb.Grow(len(src) * 2)

	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case ch == '"':
			end := stringEnd(src, i)
			tok := src[i:end]
			if nextNonSpace(src, end) == ':' {
				sb.WriteString(f.jsonKey.Sprint(tok))
			} else {
				sb.WriteString(f.jsonString.Sprint(tok))
			}
			i = end
		case ch == '-' || (ch >= '0' && ch <= '9'):
			end := i + 1
			for end < len(src) && strings.IndexByte("0123456789.eE+-", src[end]) >= 0 {
				end++
			}
			sb.WriteString(f.jsonNumber.Sprint(src[i:end]))
			i = end
		case strings.HasPrefix(src[i:], "true"):
			sb.WriteString(f.jsonBool.Sprint("true"))
			i += 4
		case strings.HasPrefix(src[i:], "false"):
			sb.WriteString(f.jsonBool.Sprint("false"))
			i += 5
		case strings.HasPrefix(src[i:], "null"):
			sb.WriteString(f.jsonNull.Sprint("null"))
			i += 4
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return sb.String()
}

// stringEnd returns the index just past the string literal starting at i.
func stringEnd(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(s)
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		if c := s[i]; c != ' ' && c != '\n' && c != '\t' && c != '\r' {
			return c
		}
	}
	return 0
}

// formatXML re-indents well-formed XML. Malformed input is returned unchanged.
func formatXML(body string) string {
	dec := xml.NewDecoder(strings.NewReader(body))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return body
		}
		if cd, ok := tok.(xml.CharData); ok {
			trimmed := bytes.TrimSpace(cd)
			if len(trimmed) == 0 {
				continue
			}
			tok = xml.CharData(trimmed)
		}
		if err := enc.EncodeToken(tok); err != nil {
			return body
		}
	}
	if err := enc.Flush(); err != nil {
		return body
	}
	return buf.String()
}

// FormatError renders err as a red "Error: ..." line.
func (f *Formatter) FormatError(err error) string {
	return f.errorColor.Sprintf("Error: %v", err)
}

// FormatSuccess renders msg with a check mark.
func (f *Formatter) FormatSuccess(msg string) string {
	return f.successColor.Sprint("✓ " + msg)
}

// FormatInfo renders msg in the info color.
func (f *Formatter) FormatInfo(msg string) string {
	return f.infoColor.Sprint(msg)
}
