package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/version"
)

// releaseCheckTimeout bounds the --check request.
const releaseCheckTimeout = 10 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

// newReleaseClient builds the release client, replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var newReleaseClient = func() *version.Client { return version.NewClient() }

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the satchel version, commit and platform.

With --check, also ask GitHub for the latest release.

Example:
  satchel version
  satchel version --check -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}

// versionResult is the JSON form of the version command.
type versionResult struct {
	version.Info
	Update *version.Check `json:"update,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	res := versionResult{Info: version.Current()}

	if versionCheck {
		ctx, cancel := context.WithTimeout(cmd.Context(), releaseCheckTimeout)
		defer cancel()
		check, err := newReleaseClient().CheckLatest(ctx, res.Version)
		if err != nil {
			return err
		}
		res.Update = check
	}

	return cc.Fmt.Result(res, func(w io.Writer) error {
		outln(w, res.Info.String())
		if res.Update == nil {
			return nil
		}
		if res.Update.Newer {
			out(w, "A newer release is available: %s\n", res.Update.Latest)
			if res.Update.URL != "" {
				out(w, "  %s\n", res.Update.URL)
			}
			return nil
		}
		out(w, "Up to date (latest release %s)\n", res.Update.Latest)
		return nil
	})
}
