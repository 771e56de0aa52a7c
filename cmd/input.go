package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// interactionFlags are the context flags shared by the terminal commands.
type interactionFlags struct {
	userID     string
	roles      []string
	domain     string
	taskType   string
	expertise  string
	stakes     string
	urgency    string
	resources  []string
	jsonOutput bool
}

func (f *interactionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "caller user id (defaults to the OS user)")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "caller roles")
	cmd.Flags().StringVar(&f.domain, "domain", "", "domain: conversational, technical or compliance (classified when empty)")
	cmd.Flags().StringVar(&f.taskType, "task", "", "task type")
	cmd.Flags().StringVar(&f.expertise, "expertise", "", "user expertise: novice, intermediate or expert")
	cmd.Flags().StringVar(&f.stakes, "stakes", "", "stakes: low, medium or high")
	cmd.Flags().StringVar(&f.urgency, "urgency", "", "time sensitivity: low, normal or urgent")
	cmd.Flags().StringSliceVar(&f.resources, "resource", nil, "available resource (repeatable)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "output results as JSON")
}

func (f *interactionFlags) identity() auth.Identity {
	id := auth.Identity{UserID: f.userID, Roles: f.roles}
	if id.UserID == "" {
		if u, err := user.Current(); err == nil {
			id.UserID = u.Username
		}
	}
	return id
}

func (f *interactionFlags) context() uncertainty.Context {
	return uncertainty.Context{
		Domain:             uncertainty.Domain(f.domain),
		TaskType:           f.taskType,
		UserExpertise:      uncertainty.Expertise(f.expertise),
		Stakes:             uncertainty.Stakes(f.stakes),
		TimeSensitivity:    uncertainty.TimeSensitivity(f.urgency),
		AvailableResources: f.resources,
	}
}

// readText returns the joined arguments, or stdin when there are none or
// the only argument is "-".
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text given: pass it as arguments or on stdin")
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAssessment(w io.Writer, a uncertainty.Assessment) {
	fmt.Fprintf(w, "Domain:          %s\n", a.Domain)
	fmt.Fprintf(w, "Overall:         %.3f\n", a.Overall)
	fmt.Fprintf(w, "  epistemic:     %.3f\n", a.Epistemic)
	fmt.Fprintf(w, "  aleatoric:     %.3f\n", a.Aleatoric)
	fmt.Fprintf(w, "  confidence:    %.3f\n", a.Confidence)
	fmt.Fprintf(w, "Recommendation:  %s\n", a.Recommendation)
	if len(a.Sources) > 0 {
		srcs := make([]string, len(a.Sources))
		for i, s := range a.Sources {
			srcs[i] = string(s)
		}
		fmt.Fprintf(w, "Sources:         %s\n", strings.Join(srcs, ", "))
	}
	if a.Fallback {
		fmt.Fprintln(w, "Note:            assessment failed; conservative fallback used")
	}
	if a.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", a.Explanation)
	}
}
