package cmd

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository the release binaries are published to.
const githubRepoSlug = "giantswarm/mcp-minecraft"

var errDevelopmentVersion = errors.New("cannot self-update a development version")

// newSelfUpdateCmd creates the Cobra command that replaces the running binary
// with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update mcp-minecraft to the latest version",
		Long: `Checks GitHub for the latest release of mcp-minecraft and replaces the
current binary when a newer version is available. Release checksums are
verified before the binary is swapped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			current := rootCmd.Version
			if current == "" || current == "dev" {
				return errDevelopmentVersion
			}

			updater, err := selfupdate.NewUpdater(selfupdate.Config{
				Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
			})
			if err != nil {
				return fmt.Errorf("failed to create updater: %w", err)
			}

			ctx := cmd.Context()
			latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
			if err != nil {
				return fmt.Errorf("failed to detect latest version: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s/%s in %s", runtime.GOOS, runtime.GOARCH, githubRepoSlug)
			}

			out := cmd.OutOrStdout()
			if latest.LessOrEqual(current) {
				_, _ = fmt.Fprintf(out, "Current version %s is the latest\n", current)
				return nil
			}

			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return fmt.Errorf("could not locate executable path: %w", err)
			}
			if err := updater.UpdateTo(ctx, latest, exe); err != nil {
				return fmt.Errorf("failed to update binary: %w", err)
			}

			_, _ = fmt.Fprintf(out, "Updated mcp-minecraft from %s to %s\n", current, latest.Version())
			return nil
		},
	}
}
