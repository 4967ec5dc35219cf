package cmd

import (
	"encoding/json"
	"os"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/babelcloud/holocast/internal/version"
	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.ClientInfo()
			if outputFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			rows := []map[string]any{}
			for _, key := range []string{"Version", "ProtocolVersion", "GitCommit", "FormattedTime", "GoVersion", "OS", "Arch"} {
				rows = append(rows, map[string]any{"key": key, "value": info[key]})
			}
			util.RenderTable(os.Stdout, []util.TableColumn{
				{Header: "FIELD", Key: "key"},
				{Header: "VALUE", Key: "value"},
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
