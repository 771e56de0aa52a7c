package cmd

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hitl/internal/config"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default hitl configuration file",
	Long:  `Writes .hitl.yml (or --config) with the default domain profiles, session settings and routing triggers. With --interactive it asks for the storage backend and the optional model judge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
		}

		cfg := config.DefaultConfig()
		if initInteractive {
			if err := runWizard(cfg); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(cfgFile); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", cfgFile)
		return nil
	},
}

// runWizard asks for the settings most deployments change.
func runWizard(cfg *config.Config) error {
	storagePrompt := promptui.Select{
		Label: "Where should sessions and history be stored",
		Items: []string{string(config.StorageMemory), string(config.StorageSQLite)},
	}
	_, driver, err := storagePrompt.Run()
	if err != nil {
		return fmt.Errorf("storage selection: %w", err)
	}
	cfg.Storage.Driver = config.StorageDriver(driver)

	llmPrompt := promptui.Select{
		Label: "Model judge provider",
		Items: []string{"none", string(config.ProviderOpenAI), string(config.ProviderOllama)},
	}
	_, provider, err := llmPrompt.Run()
	if err != nil {
		return fmt.Errorf("provider selection: %w", err)
	}
	if provider != "none" {
		cfg.LLM.Provider = config.ProviderType(provider)
		cfg.LLM.Model = config.DefaultModel(cfg.LLM.Provider)
	}

	webhookPrompt := promptui.Prompt{
		Label:   "Webhook URL for engagement requests (empty to skip)",
		Default: cfg.Notify.WebhookURL,
	}
	url, err := webhookPrompt.Run()
	if err != nil {
		return fmt.Errorf("webhook prompt: %w", err)
	}
	cfg.Notify.WebhookURL = url
	return nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "ask for the main settings")
	rootCmd.AddCommand(initCmd)
}
