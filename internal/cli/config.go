package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/satchel/internal/config"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify satchel configuration settings.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Create a default configuration file at ~/.satchel/config.yaml.

If a configuration file already exists, this command will fail unless
--force is specified.

Example:
  satchel config init
  satchel config init --home /tmp/satchel-test --force`,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration: the file merged with SATCHEL_*
environment variables and command-line flags.

Example:
  satchel config show
  satchel config show -o json`,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Print one configuration value addressed with dot notation.

Example:
  satchel config get fees.rate_sat_vb
  satchel config get chain.esplora.testnet`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set one value in the configuration file using dot notation.

The value is parsed as YAML, so numbers and booleans keep their type.
The resulting file is validated before it is written.

Example:
  satchel config set wallet.gap_limit 30
  satchel config set chain.esplora.regtest http://127.0.0.1:3002/api
  satchel config set output.default_format json`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	home := config.ExpandPath(cc.Cfg.Home)
	configPath := config.Path(home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return walleterr.WithSuggestion(
			walleterr.WithDetails(walleterr.ErrGeneral, map[string]string{"path": configPath}),
			"configuration already exists. Use --force to overwrite.",
		)
	}

	defaults := config.Defaults()
	defaults.Home = cc.Cfg.Home
	if err := config.Save(defaults, configPath); err != nil {
		return walleterr.Wrap(walleterr.WithCause(walleterr.ErrGeneral, err), "writing config file")
	}

	cc.Log.Info("config initialized at %s", configPath)

	return cc.Fmt.Result(map[string]string{"path": configPath}, func(w io.Writer) error {
		out(w, "Configuration initialized at %s\n", configPath)
		outln(w)
		outln(w, "Edit this file to configure:")
		outln(w, "  - network: default network (mainnet, testnet, signet, regtest)")
		outln(w, "  - chain.esplora.<network>: Esplora API base URL")
		outln(w, "  - fees.rate_sat_vb: default fee rate")
		outln(w, "  - wallet.gap_limit: unused addresses scanned before stopping")
		return nil
	})
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	tree, err := configTree(cc.Cfg)
	if err != nil {
		return err
	}
	return cc.Fmt.Result(tree, func(w io.Writer) error {
		data, err := yaml.Marshal(tree)
		if err != nil {
			return err
		}
		out(w, "# %s\n", config.Path(config.ExpandPath(cc.Cfg.Home)))
		_, err = w.Write(data)
		return err
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	tree, err := configTree(cc.Cfg)
	if err != nil {
		return err
	}

	value, err := lookupPath(tree, args[0])
	if err != nil {
		return err
	}

	return cc.Fmt.Result(map[string]any{"path": args[0], "value": value}, func(w io.Writer) error {
		switch v := value.(type) {
		case map[string]any, []any:
			data, err := yaml.Marshal(v)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		default:
			outln(w, v)
			return nil
		}
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path, raw := args[0], args[1]
	configPath := config.Path(config.ExpandPath(cc.Cfg.Home))

	current, err := config.Load(configPath)
	if err != nil {
		if !walleterr.Is(err, walleterr.ErrConfigNotFound) {
			return err
		}
		current = config.Defaults()
		current.Home = cc.Cfg.Home
	}

	tree, err := configTree(current)
	if err != nil {
		return err
	}

	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	if err := assignPath(tree, path, value); err != nil {
		return err
	}

	updated, err := configFromTree(tree)
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.Save(updated, configPath); err != nil {
		return walleterr.Wrap(walleterr.WithCause(walleterr.ErrGeneral, err), "saving config")
	}

	return cc.Fmt.Result(map[string]any{"path": path, "value": value}, func(w io.Writer) error {
		out(w, "Set %s = %v\n", path, value)
		return nil
	})
}

// configTree renders c as its YAML key tree.
func configTree(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// configFromTree decodes a key tree over the defaults. Unknown keys fail.
func configFromTree(tree map[string]any) (*config.Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	c := config.Defaults()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, walleterr.WithCause(walleterr.ErrConfigInvalid, err)
	}
	return c, nil
}

func lookupPath(tree map[string]any, path string) (any, error) {
	var node any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, unknownConfigPath(path, nil)
		}
		next, ok := m[key]
		if !ok {
			return nil, unknownConfigPath(path, m)
		}
		node = next
	}
	return node, nil
}

// assignPath sets path in tree. Only the chain.esplora map accepts new keys.
func assignPath(tree map[string]any, path string, value any) error {
	keys := strings.Split(path, ".")
	node := tree
	for i, key := range keys {
		last := i == len(keys)-1
		next, exists := node[key]
		if last {
			if !exists && !isOpenMap(keys[:i]) {
				return unknownConfigPath(path, node)
			}
			if _, isMap := next.(map[string]any); isMap {
				return walleterr.WithDetails(walleterr.ErrInvalidInput,
					map[string]string{"path": path, "reason": "path names a section, not a value"})
			}
			node[key] = value
			return nil
		}
		child, ok := next.(map[string]any)
		if !ok {
			if next != nil || !isOpenMap(keys[:i+1]) {
				return unknownConfigPath(path, node)
			}
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	return nil
}

func isOpenMap(prefix []string) bool {
	return strings.Join(prefix, ".") == "chain.esplora"
}

func unknownConfigPath(path string, siblings map[string]any) error {
	err := walleterr.WithDetails(walleterr.ErrNotFound, map[string]string{"path": path})
	if len(siblings) == 0 {
		return err
	}
	keys := make([]string, 0, len(siblings))
	for k := range siblings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return walleterr.WithSuggestion(err, fmt.Sprintf("valid keys here: %s", strings.Join(keys, ", ")))
}
