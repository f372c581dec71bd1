package cli

import (
	"io"

	"github.com/spf13/cobra"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Print a shell completion script",
	Long: `Print a completion script for bash, zsh, fish or powershell.

Completions cover commands, flags and the names of stored wallets for
--wallet, read from the data directory at completion time.

Load for the current shell:
  source <(satchel completion bash)
  satchel completion fish | source
  satchel completion powershell | Out-String | Invoke-Expression

Install for new shells:
  satchel completion bash > ~/.local/share/bash-completion/completions/satchel
  satchel completion zsh > "${fpath[1]}/_satchel"
  satchel completion fish > ~/.config/fish/completions/satchel.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCompletion(cmd.Root(), cmd.OutOrStdout(), args[0])
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(completionCmd)
}

// writeCompletion renders the script for shell. Descriptions are included
// wherever the shell supports them.
func writeCompletion(root *cobra.Command, w io.Writer, shell string) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(w)
	}
	return walleterr.WithSuggestion(
		walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"shell": shell}),
		"Supported shells: bash, zsh, fish, powershell",
	)
}
