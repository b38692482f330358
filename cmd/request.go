package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/paths"
	"github.com/ideaspaper/reqkit/internal/stringutil"
	"github.com/ideaspaper/reqkit/pkg/client"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/output"
	"github.com/ideaspaper/reqkit/pkg/proxy"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/response"
	"github.com/ideaspaper/reqkit/pkg/tlsconfig"
)

// requestOptions holds the flags of the request command.
type requestOptions struct {
	method          string
	headers         []string
	body            string
	contentType     string
	form            []string
	files           []string
	timeoutSec      int
	followRedirects bool
	maxRedirects    int
	showHeaders     bool
	showBody        bool
	format          string
	user            string
	bearer          string
	insecure        bool
	proxy           string
	transport       string
	stream          bool
	outputFile      string
	noCookies       bool

	// changed reports whether a flag was set on the command line.
	changed func(name string) bool
}

func (o *requestOptions) set(name string) bool {
	return o.changed != nil && o.changed(name)
}

var reqOpts requestOptions

// readPassword prompts on the terminal. Swapped out in tests.
var readPassword = func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

var requestCmd = &cobra.Command{
	Use:   "request <url> [flags]",
	Short: "Send one HTTP request",
	Long: `Send one HTTP request and print the response.

Examples:
  # GET with response headers
  reqkit request --show-headers https://example.org/get

  # POST a JSON body
  reqkit request -X POST -d '{"name":"x"}' https://api.example.com/items

  # Read the body from a file
  reqkit request -X PUT -d @payload.json https://api.example.com/items/1

  # Submit a form and a file as multipart
  reqkit request -X POST --form title=report -F upload=@./report.pdf https://api.example.com/upload

  # Basic auth, prompting for the password
  reqkit request -u alice https://api.example.com/me

  # Print the response as YAML
  reqkit request --format yaml https://example.org/get

  # Save the body to a file
  reqkit request -o ./logo.png https://example.org/logo.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqOpts.changed = func(name string) bool { return cmd.Flags().Changed(name) }

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRequest(ctx, cmd.OutOrStdout(), &reqOpts, args[0])
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)

	f := requestCmd.Flags()
	f.StringVarP(&reqOpts.method, "method", "X", constants.MethodGET, "HTTP method")
	f.StringArrayVarP(&reqOpts.headers, "header", "H", nil, `request header "Name: value" (repeatable)`)
	f.StringVarP(&reqOpts.body, "body", "d", "", "request body, or @file to read it from a file")
	f.StringVar(&reqOpts.contentType, "content-type", constants.MIMEApplicationJSON, "Content-Type of the body")
	f.StringArrayVar(&reqOpts.form, "form", nil, "form field key=value (repeatable)")
	f.StringArrayVarP(&reqOpts.files, "file", "F", nil, "multipart file name=@path (repeatable)")
	f.IntVar(&reqOpts.timeoutSec, "timeout", int(constants.DefaultTimeout/time.Second), "overall timeout in seconds, 0 for none")
	f.BoolVar(&reqOpts.followRedirects, "follow-redirects", true, "follow redirects")
	f.IntVar(&reqOpts.maxRedirects, "max-redirects", constants.DefaultMaxRedirects, "maximum redirects to follow")
	f.BoolVar(&reqOpts.showHeaders, "show-headers", false, "print the status line and response headers")
	f.BoolVar(&reqOpts.showBody, "show-body", true, "print the response body")
	f.StringVar(&reqOpts.format, "format", string(output.FormatText), "output format: text, json, yaml or headers")
	f.StringVarP(&reqOpts.user, "user", "u", "", "basic auth user[:password]")
	f.StringVar(&reqOpts.bearer, "bearer", "", "bearer token")
	f.BoolVarP(&reqOpts.insecure, "insecure", "k", false, "skip TLS certificate verification")
	f.StringVar(&reqOpts.proxy, "proxy", "", "proxy URL for all schemes")
	f.StringVar(&reqOpts.transport, "transport", "", "named transport: http1, http2 or h2c")
	f.BoolVar(&reqOpts.stream, "stream", false, "copy the body to stdout as it arrives")
	f.StringVarP(&reqOpts.outputFile, "output", "o", "", "write the body to a file instead of stdout")
	f.BoolVar(&reqOpts.noCookies, "no-cookies", false, "don't load or save the cookie jar")

	requestCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, len(output.Formats))
		for i, f := range output.Formats {
			names[i] = string(f)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

func runRequest(ctx context.Context, out io.Writer, o *requestOptions, rawURL string) error {
	format, err := output.ParseFormat(o.format)
	if err != nil {
		return err
	}

	jar, jarPath, err := openCookieJar(o)
	if err != nil {
		return err
	}

	opts, err := clientOptions(o, jar)
	if err != nil {
		return err
	}
	c, err := client.New(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	b, err := buildRequest(c, o, rawURL)
	if err != nil {
		return err
	}

	if verbose {
		printMethodURL(os.Stderr, strings.ToUpper(o.method), stringutil.TruncateMiddle(rawURL, 100))
	}

	resp, err := b.Send(ctx)
	if jar != nil {
		if saveErr := jar.Save(nil, jarPath); saveErr != nil {
			logger.Warn("failed to save cookie jar", "path", jarPath, "error", saveErr)
		}
	}
	if err != nil {
		return errors.Wrap(err, "request failed")
	}

	formatter := newFormatter()
	if o.outputFile != "" {
		return saveResponse(out, formatter, resp, o)
	}
	if o.stream {
		return streamResponse(out, formatter, resp, o.showHeaders)
	}

	ex, err := output.Capture(resp)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	return formatter.Render(out, ex, output.Options{
		Format:      format,
		ShowHeaders: o.showHeaders,
		ShowBody:    o.showBody,
		ShowTiming:  verbose,
	})
}

// openCookieJar loads the persisted jar unless cookies are disabled. A nil
// store means the request runs without cookies.
func openCookieJar(o *requestOptions) (*cookies.Store, string, error) {
	if o.noCookies || !appConfig.RememberCookies {
		return nil, "", nil
	}
	path, err := paths.DefaultCookieJarPath()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to locate cookie jar")
	}
	jar := cookies.New(cookies.WithLogger(logger))
	if err := jar.Load(nil, path); err != nil {
		logger.Warn("ignoring unreadable cookie jar", "path", path, "error", err)
	}
	return jar, path, nil
}

// clientOptions layers command-line flags over the config file options.
func clientOptions(o *requestOptions, jar *cookies.Store) ([]client.Option, error) {
	opts, err := appConfig.ClientOptions(appEnv)
	if err != nil {
		return nil, err
	}
	opts = append(opts, client.WithLogger(logger), client.WithCookieStore(jar))
	if verbose {
		opts = append(opts, client.WithMiddleware(middleware.Logging(logger, middleware.LogOptions{Headers: true})))
	}

	if o.set("timeout") {
		opts = append(opts, client.WithTimeout(time.Duration(o.timeoutSec)*time.Second))
	}
	if o.set("max-redirects") {
		opts = append(opts, client.WithMaxRedirects(o.maxRedirects))
	}
	if o.set("follow-redirects") && !o.followRedirects {
		opts = append(opts, client.WithoutRedirects())
	}
	if o.insecure {
		opts = append(opts, client.WithTLS(tlsconfig.Insecure()))
	}
	if o.proxy != "" {
		p, err := proxy.NewBuilder().All(o.proxy).Build()
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithProxy(p))
	}
	if o.transport != "" {
		opts = append(opts, client.WithTransportName(o.transport))
	}
	return opts, nil
}

func buildRequest(c *client.Client, o *requestOptions, rawURL string) (*client.RequestBuilder, error) {
	b := c.Request(strings.ToUpper(o.method), rawURL)

	for _, h := range o.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, errors.NewValidationErrorWithValue("header", h, `expected "Name: value"`)
		}
		b.Header(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	switch {
	case len(o.files) > 0:
		parts, err := multipartParts(o.form, o.files)
		if err != nil {
			return nil, err
		}
		b.Multipart(parts...)
	case len(o.form) > 0:
		for _, field := range o.form {
			key, value, _ := strings.Cut(field, "=")
			b.Form(key, value)
		}
	case o.body != "":
		data, err := readBodyArg(o.body)
		if err != nil {
			return nil, err
		}
		b.Bytes(data).ContentType(o.contentType)
	}

	switch {
	case o.bearer != "":
		b.BearerAuth(o.bearer)
	case o.user != "":
		user, pass, hasPass := strings.Cut(o.user, ":")
		if !hasPass {
			pw, err := readPassword(fmt.Sprintf("Enter password for %s: ", user))
			if err != nil {
				return nil, errors.Wrap(err, "failed to read password")
			}
			pass = pw
		}
		b.BasicAuth(user, pass)
	}

	return b, nil
}

// multipartParts turns key=value fields and name=@path files into parts,
// fields first.
func multipartParts(fields, files []string) ([]request.Part, error) {
	parts := make([]request.Part, 0, len(fields)+len(files))
	for _, field := range fields {
		key, value, _ := strings.Cut(field, "=")
		parts = append(parts, request.TextPart(key, value))
	}
	for _, file := range files {
		name, path, ok := strings.Cut(file, "=")
		if !ok || !strings.HasPrefix(path, "@") || len(path) == 1 {
			return nil, errors.NewValidationErrorWithValue("file", file, "expected name=@path")
		}
		parts = append(parts, request.FilePart(name, path[1:]))
	}
	return parts, nil
}

func readBodyArg(body string) ([]byte, error) {
	if !strings.HasPrefix(body, "@") {
		return []byte(body), nil
	}
	data, err := os.ReadFile(body[1:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body file")
	}
	return data, nil
}

// saveResponse writes the body to o.outputFile, behind an optional status
// line and header block, and reports the size and transfer rate.
func saveResponse(out io.Writer, f *output.Formatter, resp *response.Response, o *requestOptions) error {
	defer resp.Close()
	if o.showHeaders {
		head := &output.Exchange{Proto: resp.Proto, StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header}
		fmt.Fprintln(out, f.FormatStatusLine(head))
		fmt.Fprintln(out, f.FormatHeaders(head))
	}

	start := time.Now()
	n, err := resp.SaveToFile(nil, o.outputFile, func(read, total int64) {
		logger.Debug("download progress", "bytes", read, "total", total)
	})
	if err != nil {
		return errors.Wrap(err, "failed to save response")
	}
	elapsed := time.Since(start)
	msg := fmt.Sprintf("Saved %s to %s (%s)", stringutil.FormatBytes(n), o.outputFile, stringutil.FormatRate(n, elapsed))
	fmt.Fprintln(out, f.FormatSuccess(msg))
	return nil
}

// streamResponse copies the body to out chunk by chunk, behind an optional
// status line and header block.
func streamResponse(out io.Writer, f *output.Formatter, resp *response.Response, showHeaders bool) error {
	if showHeaders {
		head := &output.Exchange{Proto: resp.Proto, StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header}
		fmt.Fprintln(out, f.FormatStatusLine(head))
		fmt.Fprintln(out, f.FormatHeaders(head))
	}

	s, err := resp.Stream(0)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	var total int64
	w := bufio.NewWriter(out)
	for chunk, err := range s.Chunks() {
		if err != nil {
			w.Flush()
			return errors.Wrap(err, "stream interrupted")
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	logger.Debug("stream finished", "bytes", total, "rate", stringutil.FormatRate(total, time.Since(start)))
	return nil
}
