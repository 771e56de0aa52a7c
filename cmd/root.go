package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hitl",
	Short: "Uncertainty-driven human collaboration for AI output",
	Long: `hitl scores how uncertain a piece of AI output is, decides whether and
how a human should be involved, and runs the clarification dialogue that
turns the human's answers into refined output. It runs as an HTTP API,
as an MCP server for AI agents, or interactively from the terminal.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
