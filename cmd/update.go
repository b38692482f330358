package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// modulePath is the main package path passed to go install.
const modulePath = "github.com/ideaspaper/reqkit"

var updateVersion string

// goInstall runs go install. Swapped out in tests.
var goInstall = func(target string) error {
	goCmd := exec.Command("go", "install", target)
	goCmd.Stdout = os.Stdout
	goCmd.Stderr = os.Stderr
	return goCmd.Run()
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update reqkit with go install",
	Long: `Update reqkit using go install.

Examples:
  # Update to the latest version
  reqkit update

  # Update to a specific version
  reqkit update --version v1.0.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		target := fmt.Sprintf("%s@%s", modulePath, updateVersion)

		fmt.Fprintf(out, "Current version: %s\n", rootCmd.Version)
		fmt.Fprintf(out, "Running: go install %s\n\n", target)

		if err := goInstall(target); err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, paint(successBold, fmt.Sprintf("Successfully updated reqkit to %s!", updateVersion)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateVersion, "version", "latest", "version to install (e.g., v1.0.0, latest)")
}
