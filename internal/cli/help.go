package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/wallet"
)

const (
	groupWallets = "wallets"
	groupFunds   = "funds"
	groupSetup   = "setup"

	subcommandsHeader = "\n\nSubcommands:\n"
)

//nolint:gochecknoglobals // static command layout
var commandGroups = map[string]string{
	"wallet":     groupWallets,
	"sync":       groupFunds,
	"balance":    groupFunds,
	"receive":    groupFunds,
	"send":       groupFunds,
	"utxo":       groupFunds,
	"config":     groupSetup,
	"version":    groupSetup,
	"completion": groupSetup,
}

// prepareHelp arranges the top-level commands into groups, lists
// subcommands in parent help and wires wallet name completion.
func prepareHelp(root *cobra.Command) {
	if !root.ContainsGroup(groupWallets) {
		root.AddGroup(
			&cobra.Group{ID: groupWallets, Title: "Wallets:"},
			&cobra.Group{ID: groupFunds, Title: "Funds:"},
			&cobra.Group{ID: groupSetup, Title: "Setup:"},
		)
		root.SetHelpCommandGroupID(groupSetup)
	}
	for _, c := range root.Commands() {
		if id, ok := commandGroups[c.Name()]; ok {
			c.GroupID = id
		}
	}
	walkCommands(root, func(c *cobra.Command) {
		if c.HasParent() {
			listSubcommands(c)
		}
		completeWallets(c)
	})
}

func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// listSubcommands appends a table of visible children to cmd.Long once.
func listSubcommands(cmd *cobra.Command) {
	if !cmd.HasAvailableSubCommands() || strings.Contains(cmd.Long, subcommandsHeader) {
		return
	}
	var sb strings.Builder
	sb.WriteString(cmd.Long + subcommandsHeader)
	tw := tabwriter.NewWriter(&sb, 0, 4, 3, ' ', 0)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", sub.Name(), sub.Short)
		}
	}
	_ = tw.Flush()
	cmd.Long = sb.String()
}

// completeWallets offers stored wallet names for --wallet and for the
// wallet show argument.
func completeWallets(cmd *cobra.Command) {
	if cmd.LocalFlags().Lookup("wallet") != nil {
		_ = cmd.RegisterFlagCompletionFunc("wallet", walletNameCompletion)
	}
	if cmd == walletShowCmd && cmd.ValidArgsFunction == nil {
		cmd.ValidArgsFunction = func(c *cobra.Command, args []string, prefix string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return walletNameCompletion(c, args, prefix)
		}
	}
}

func walletNameCompletion(_ *cobra.Command, _ []string, prefix string) ([]string, cobra.ShellCompDirective) {
	c := config.Defaults()
	c.Home = resolveHome()
	names, err := wallet.NewFileStorage(c.WalletsDir()).List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	matches := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			matches = append(matches, n)
		}
	}
	sort.Strings(matches)
	return matches, cobra.ShellCompDirectiveNoFileComp
}
