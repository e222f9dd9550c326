// Ttsgraph compiles Qwen-TTS dialogue prompts into node-graph workflows.
//
// Usage:
//
//	ttsgraph serve [--config /path/to/ttsgraph.yaml]
//	ttsgraph compile --prompt "<audio>Serena: Hi" --voices voices.yaml --model 1.7B
//	ttsgraph frames --seconds 4 --fps 24
//	ttsgraph version
//
// @title       ttsgraph API
// @version     1.0
// @description Compiles Qwen-TTS dialogue prompts into node-graph workflows.
// @BasePath    /
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ttsgraph",
		Short: "Qwen-TTS dialogue graph compiler",
		Long: `Compiles the <audio> section of a prompt and a list of voices into a
Qwen-TTS dialogue graph, either as a standalone audio workflow or spliced
into an LTX-Video-2 workflow.

Configuration is read from ./ttsgraph.yaml, ./configs/ttsgraph.yaml or
/etc/ttsgraph/ttsgraph.yaml, and from TTSGRAPH_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config file (e.g. configs/ttsgraph.local.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newCompileCmd(opts),
		newFramesCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ttsgraph %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
