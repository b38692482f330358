package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/ideaspaper/reqkit/pkg/output"
)

// stdoutIsTerminal is swapped out in tests.
var stdoutIsTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// useColors reports whether colored output should be used. The showColors
// config option, --no-color and a non-terminal stdout each turn colors off.
func useColors() bool {
	if noColor {
		return false
	}
	if appConfig != nil && !appConfig.ShowColors {
		return false
	}
	return stdoutIsTerminal()
}

func newFormatter() *output.Formatter {
	return output.NewFormatter(useColors())
}

// Color definitions for consistent styling across commands
var (
	headerColor  = color.New(color.FgCyan)
	dimColor     = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen)
	successBold  = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed)
	keyColor     = color.New(color.FgCyan)
	valueColor   = color.New(color.FgWhite)
)

// getMethodColor returns the appropriate color for an HTTP method
func getMethodColor(method string) *color.Color {
	switch method {
	case "GET":
		return color.New(color.FgGreen, color.Bold)
	case "POST":
		return color.New(color.FgYellow, color.Bold)
	case "PUT":
		return color.New(color.FgBlue, color.Bold)
	case "DELETE":
		return color.New(color.FgRed, color.Bold)
	case "PATCH":
		return color.New(color.FgMagenta, color.Bold)
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

func paint(c *color.Color, s string) string {
	if useColors() {
		return c.Sprint(s)
	}
	return s
}

// printHeader prints a colored header/title line
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, paint(headerColor, title))
}

// printMethod formats an HTTP method with color
func printMethod(method string) string {
	return paint(getMethodColor(method), method)
}

// printDimText formats text in dim/muted color
func printDimText(text string) string {
	return paint(dimColor, text)
}

// printKeyValue prints an indented key = value line
func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s = %s\n", paint(keyColor, key), paint(valueColor, value))
}

// printMethodURL prints method and URL in bold green
func printMethodURL(w io.Writer, method, url string) {
	fmt.Fprintln(w, paint(successBold, method+" "+url))
}

func printTestPass(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", paint(successColor, "PASS"), name)
}

func printTestFail(w io.Writer, name, reason string) {
	fmt.Fprintf(w, "%s %s: %s\n", paint(errorColor, "FAIL"), name, reason)
}
