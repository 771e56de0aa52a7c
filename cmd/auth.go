package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credentials for model providers",
	Long: `Store and manage API credentials for the model judge and OpenAI embeddings.

Credentials are stored in ~/.hitl/credentials.json and used
as a fallback when environment variables are not set.`,
}

var authOpenAICmd = &cobra.Command{
	Use:   "openai",
	Short: "Store OpenAI API key",
	Long: `Store your OpenAI API key for persistent use.

Get your API key at https://platform.openai.com/api-keys`,
	RunE: runAuthOpenAI,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which providers have stored credentials",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authOpenAICmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
}

func runAuthOpenAI(cmd *cobra.Command, args []string) error {
	p := promptui.Prompt{
		Label: "OpenAI API key",
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("API key is required")
			}
			return nil
		},
	}
	input, err := p.Run()
	if err != nil {
		return fmt.Errorf("API key prompt: %w", err)
	}

	creds, err := auth.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	creds.OpenAI = &auth.APIKeyCredentials{APIKey: strings.TrimSpace(input)}

	if err := auth.Save(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "OpenAI credentials stored successfully!")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	creds, err := auth.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	w := cmd.OutOrStdout()
	path, _ := auth.CredentialPath()
	fmt.Fprintf(w, "Credentials file: %s\n\n", path)

	fmt.Fprintln(w, "Provider     Status")
	fmt.Fprintln(w, "--------     ------")

	if env := os.Getenv("OPENAI_API_KEY"); env != "" {
		fmt.Fprintln(w, "openai       configured (env var)")
	} else if creds.OpenAI != nil && creds.OpenAI.APIKey != "" {
		fmt.Fprintln(w, "openai       configured (stored)")
	} else {
		fmt.Fprintln(w, "openai       not configured")
	}

	// Ollama (always available locally)
	fmt.Fprintln(w, "ollama       available (local)")

	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if err := auth.Save(&auth.Credentials{}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All stored credentials removed.")
	return nil
}
