package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Elore26/assistant/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize configuration",
	Long:  "Show the effective configuration, or write a default assistant.yaml to start from.",
	RunE:  runConfig,
}

var configInit bool

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write a default assistant.yaml")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configInit {
		return initConfigFile()
	}
	return showConfig()
}

func initConfigFile() error {
	if _, err := os.Stat("assistant.yaml"); err == nil {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).
			Render("assistant.yaml already exists. Run 'assistant config' to view it."))
		return nil
	}

	defaults := config.DefaultConfig()
	if err := defaults.Save("assistant.yaml"); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).
		Render("Created assistant.yaml with default settings."))
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - LLM endpoint, model and API key")
	fmt.Println("  - Store driver (memory or postgres)")
	fmt.Println("  - Daily budgets and gated/blocked tools")
	fmt.Println("  - Telegram notifications")
	return nil
}

func showConfig() error {
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true).
		Render("Effective Configuration:\n"))

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	fmt.Println(string(data))

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).
		Render("Config file locations (in order of precedence):"))
	fmt.Println("  1. --config flag")
	fmt.Println("  2. ./assistant.yaml")
	fmt.Println("  3. ~/.config/assistant/assistant.yaml")
	fmt.Println("\nEnvironment overrides use the ASSISTANT_ prefix, e.g. ASSISTANT_LLM_API_KEY.")
	return nil
}
