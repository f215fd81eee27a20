package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
		roleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB"))
		dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
		toolStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

		for _, agent := range k.roster.Agents() {
			fmt.Printf("%s  %s\n", nameStyle.Render("◆ "+agent.Name), roleStyle.Render(agent.Role))
			if agent.Goal != "" {
				fmt.Printf("    %s\n", dimStyle.Render(agent.Goal))
			}
			if len(agent.Tools) > 0 {
				fmt.Printf("    %s %s\n", dimStyle.Render("tools:"), toolStyle.Render(strings.Join(agent.Tools, ", ")))
			}
			if agent.Schedule != "" {
				fmt.Printf("    %s %s\n", dimStyle.Render("schedule:"), roleStyle.Render(agent.Schedule))
			}
			fmt.Println()
		}
		return nil
	},
}
