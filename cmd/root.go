package cmd

import (
	"fmt"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/babelcloud/holocast/internal/version"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "holocast",
		Short: "Stream rendered content onto a shared surface",
		Long: `holocast renders content in a producer process, captures it into a shared
GPU surface at an adaptive frame rate and presents it on a world-anchored quad
in a consumer process. Input from the consumer is routed back to the content.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.ClientInfo()
				fmt.Printf("holocast version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(NewProduceCommand())
	rootCmd.AddCommand(NewPresentCommand())
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
