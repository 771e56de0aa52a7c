package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/engine"
)

var assessFlags interactionFlags

var assessCmd = &cobra.Command{
	Use:   "assess [text]",
	Short: "Score the uncertainty of a piece of AI output",
	Long:  `Assesses epistemic, aleatoric and confidence uncertainty of the given text (or stdin) and prints the recommended engagement strategy. Nothing is recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.AssessUncertainty(cmd.Context(), assessFlags.identity(), engine.AssessRequest{
			Text:    text,
			Context: assessFlags.context(),
		})
		if err != nil {
			return err
		}
		if assessFlags.jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printAssessment(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	assessFlags.register(assessCmd)
	rootCmd.AddCommand(assessCmd)
}
