package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/engine"
	"github.com/ziadkadry99/hitl/internal/prompt"
)

var (
	clarifyFlags     interactionFlags
	clarifyThreshold float64
)

var clarifyCmd = &cobra.Command{
	Use:   "clarify [text]",
	Short: "Verify output and answer the clarification questions interactively",
	Long: `Runs verify_with_engagement on the text and, when a human is needed,
asks each clarification question at the terminal until the session
completes. The refined output is printed at the end. Pass the text as
arguments; stdin is used for the answers.`,
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

		ctx := cmd.Context()
		id := clarifyFlags.identity()
		w := cmd.OutOrStdout()

		res, err := a.engine.VerifyWithEngagement(ctx, id, engine.VerifyRequest{
			Text:                text,
			Context:             clarifyFlags.context(),
			EngagementThreshold: clarifyThreshold,
		})
		if err != nil {
			return err
		}
		if !res.RequiresClarification {
			fmt.Fprintf(w, "No clarification needed (confidence %.2f).\n\n%s\n", res.ConfidenceLevel, text)
			return nil
		}
		fmt.Fprintf(w, "Clarification needed: %s, about %d min.\n\n", res.EngagementStrategy, res.EstimatedDuration)

		collector := &prompt.Collector{}
		questions := res.InitialQuestions
		var last *engine.RespondResult
		for len(questions) > 0 {
			q := questions[0]

			answer, err := collector.Ask(q)
			if err != nil {
				if _, abandonErr := a.engine.Abandon(ctx, id, res.ClarificationSessionID); abandonErr != nil {
					return fmt.Errorf("%w (abandoning session: %v)", err, abandonErr)
				}
				return err
			}
			confidence := answer.Confidence
			last, err = a.engine.ClarificationRespond(ctx, id, engine.RespondRequest{
				SessionID:    res.ClarificationSessionID,
				QuestionID:   q.ID,
				ResponseText: answer.Text,
				Confidence:   &confidence,
			})
			if err != nil {
				return err
			}
			// Unanswered questions of the round come back first.
			questions = last.NextQuestions
		}

		out, err := a.engine.RefinedOutput(ctx, id, res.ClarificationSessionID)
		if err != nil {
			return err
		}
		if clarifyFlags.jsonOutput {
			return printJSON(w, out)
		}
		if last != nil {
			fmt.Fprintf(w, "\nSession %s (%s), confidence +%.2f\n\n", out.SessionID, out.Status, last.ConfidenceImprovement)
		}
		fmt.Fprintln(w, out.RefinedOutput)
		return nil
	},
}

func init() {
	clarifyFlags.register(clarifyCmd)
	clarifyCmd.Flags().Float64Var(&clarifyThreshold, "threshold", 0, "overall uncertainty at or above which a human is always consulted")
	rootCmd.AddCommand(clarifyCmd)
}
