package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/engine"
)

var simulateFlags interactionFlags

var simulateCmd = &cobra.Command{
	Use:   "simulate [text]",
	Short: "Preview how a human would be engaged for some output",
	Long:  `Shows the engagement strategy, priority, collaboration mode and prompt that verifying the text would produce, without opening a session.`,
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

		req, err := a.engine.SimulateEngagement(cmd.Context(), simulateFlags.identity(), engine.SimulateRequest{
			Text:    text,
			Context: simulateFlags.context(),
		})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if simulateFlags.jsonOutput {
			return printJSON(w, req)
		}
		printAssessment(w, req.Assessment)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Strategy:        %s\n", req.Strategy)
		fmt.Fprintf(w, "Priority:        %s\n", req.Priority)
		fmt.Fprintf(w, "Mode:            %s\n", req.Mode)
		fmt.Fprintf(w, "Estimated time:  %s\n", req.EstimatedDuration())
		if len(req.RequiredExpertise) > 0 {
			fmt.Fprintf(w, "Expertise:       %s\n", strings.Join(req.RequiredExpertise, ", "))
		}
		fmt.Fprintf(w, "\n%s\n", req.Prompt)
		return nil
	},
}

func init() {
	simulateFlags.register(simulateCmd)
	rootCmd.AddCommand(simulateCmd)
}
