package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/pkg/config"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	noColor bool

	// Populated by PersistentPreRunE before any command runs.
	appConfig *config.Config
	appEnv    config.Env
	logger    = slog.New(slog.DiscardHandler)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   constants.AppName,
	Short: "A command-line HTTP client built on a single-send request pipeline",
	Long: `reqkit sends HTTP requests with redirect handling, cookie persistence,
timeouts, authentication and multipart uploads.

Examples:
  # Fetch a URL
  reqkit request https://example.org/get

  # POST JSON with a bearer token
  reqkit request -X POST -d '{"name":"x"}' --bearer $TOKEN https://api.example.com/items

  # Upload a file
  reqkit request -X POST -F upload=@./report.pdf https://api.example.com/upload

  # Run the smoke test against a server
  reqkit test --base-url https://httpbin.org`,
	Version:           constants.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, newFormatter().FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.reqkit/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// setup loads the config and the environment defaults, then installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		appConfig, err = config.LoadConfigFromFile(cfgFile)
	} else {
		appConfig, err = config.LoadConfig()
	}
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	appEnv = config.LoadEnv(os.LookupEnv)

	level, err := config.ParseLogLevel(appConfig.LogLevel)
	if err != nil {
		return err
	}
	logger = newLogger(cmd.ErrOrStderr(), level, verbose)
	return nil
}

func newLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
