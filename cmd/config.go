package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/babelcloud/holocast/config"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.GetHome(), "config.toml")
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", color.CyanString(path))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("%s already exists, use --force to overwrite", path)
	}
	defaults := config.Defaults()
	// the home directory is resolved per user, not persisted
	delete(defaults, "holocast")

	data, err := toml.Marshal(defaults)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if used := config.ConfigFileUsed(); used != "" {
				fmt.Printf("Config file: %s\n\n", color.CyanString(used))
			}
			rows := []map[string]any{}
			flatten("", config.AllSettings(), func(key string, value any) {
				rows = append(rows, map[string]any{"key": key, "value": value})
			})
			sort.Slice(rows, func(i, j int) bool {
				return rows[i]["key"].(string) < rows[j]["key"].(string)
			})
			util.RenderTable(os.Stdout, []util.TableColumn{
				{Header: "KEY", Key: "key"},
				{Header: "VALUE", Key: "value"},
			}, rows)
			return nil
		},
	}
}

func flatten(prefix string, m map[string]any, fn func(string, any)) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, fn)
			continue
		}
		fn(key, v)
	}
}
