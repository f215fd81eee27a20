package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Elore26/assistant/internal/registry"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Long: `List every registered tool with its tier and category.

Tiers:
  auto     executes without approval
  gated    requires an approval before every call
  blocked  never executes

Use --verbose for parameter details.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()
		printTools(k.registry)
		return nil
	},
}

func printTools(reg *registry.Registry) {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	toolStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	paramStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	gatedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	blockedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	fmt.Println(headerStyle.Render("Registered Tools"))
	fmt.Println()

	for _, name := range reg.Names() {
		def, ok := reg.Get(name)
		if !ok {
			continue
		}

		tierTag := ""
		switch def.Tier {
		case registry.TierGated:
			tierTag = " " + gatedStyle.Render("[gated]")
		case registry.TierBlocked:
			tierTag = " " + blockedStyle.Render("[blocked]")
		}

		fmt.Printf("  %s%s %s\n", toolStyle.Render("◆ "+def.Name), tierTag,
			descStyle.Render("("+string(def.Category)+")"))
		fmt.Printf("    %s\n", descStyle.Render(def.Description))

		if verbose {
			for _, p := range def.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Printf("      %s%s %s\n", paramStyle.Render(p.Name), req, descStyle.Render(p.Description))
			}
		}
		fmt.Println()
	}
}
