package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/knowledge"
	"github.com/ziadkadry99/hitl/internal/progress"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the reference documents used for knowledge coverage",
	Long: `Reads the files under knowledge.root matching knowledge.include, embeds
them and writes the index to knowledge.persist_path so that the server
and the MCP server can load it at start-up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kc := cfg.Knowledge
		if kc.Root == "" {
			return errors.New("knowledge.root is not set")
		}
		if kc.PersistPath == "" {
			return errors.New("knowledge.persist_path is not set")
		}

		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		base, err := knowledge.NewBase(embedder)
		if err != nil {
			return fmt.Errorf("creating knowledge base: %w", err)
		}

		reporter := progress.NewReporter(cmd.ErrOrStderr())
		started := false
		n, err := base.LoadFiles(cmd.Context(), kc.Root, kc.Include, func(done, total int, name string) {
			if !started {
				reporter.Start(total, "Indexing knowledge")
				started = true
			}
			reporter.Update(done, name)
		})
		if started {
			reporter.Finish()
		}
		if err != nil {
			return err
		}

		if err := base.Persist(kc.PersistPath); err != nil {
			return fmt.Errorf("persisting index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d chunks, embedder %s) into %s\n",
			n, base.Count(), embedder.Name(), kc.PersistPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
