package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideaspaper/reqkit/internal/paths"
	"github.com/ideaspaper/reqkit/internal/stringutil"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect the persisted cookie jar",
	Long: `Inspect or clear the cookies saved between requests.

Examples:
  reqkit cookies list
  reqkit cookies clear`,
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved cookies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jar, _, err := loadJar()
		if err != nil {
			return err
		}
		listCookies(cmd.OutOrStdout(), jar.All())
		return nil
	},
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved cookie",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jar, path, err := loadJar()
		if err != nil {
			return err
		}
		n := jar.Len()
		jar.Clear()
		if err := jar.Save(nil, path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), newFormatter().FormatSuccess(fmt.Sprintf("Cleared %d cookies", n)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesListCmd, cookiesClearCmd)
}

func loadJar() (*cookies.Store, string, error) {
	path, err := paths.DefaultCookieJarPath()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to locate cookie jar")
	}
	jar := cookies.New(cookies.WithLogger(logger))
	if err := jar.Load(nil, path); err != nil {
		return nil, "", err
	}
	return jar, path, nil
}

const maxCookieValueWidth = 60

func listCookies(w io.Writer, entries []cookies.Cookie) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No cookies saved.")
		return
	}
	printHeader(w, fmt.Sprintf("Cookies (%d)", len(entries)))
	for _, c := range entries {
		printKeyValue(w, c.Name, stringutil.Truncate(c.Value, maxCookieValueWidth))
		attrs := c.Domain + c.Path
		if !c.Expires.IsZero() {
			attrs += ", expires " + c.Expires.UTC().Format(time.RFC3339)
		}
		if c.Secure {
			attrs += ", secure"
		}
		if c.HttpOnly {
			attrs += ", httponly"
		}
		fmt.Fprintf(w, "    %s\n", printDimText(attrs))
	}
}
