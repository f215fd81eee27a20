package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Inspect and control guardrails",
}

var guardStatusCmd = &cobra.Command{
	Use:   "status [agent...]",
	Short: "Show budgets, breaker state and the kill switch",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
		okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
		dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

		ctx := context.Background()
		limits := k.guard.Limits()

		fmt.Println(headerStyle.Render("Guardrail Status"))
		if k.guard.KillSwitchActive() {
			fmt.Println(errStyle.Render("  KILL SWITCH ACTIVE: all runs disabled"))
		} else {
			fmt.Println(okStyle.Render("  kill switch off"))
		}
		fmt.Println()

		agents := args
		if len(agents) == 0 {
			agents = k.roster.Names()
		}
		for _, name := range agents {
			b := k.guard.BudgetFor(ctx, name)
			fmt.Println(nameStyle.Render("◆ " + name))
			fmt.Printf("    %s %d / %d\n", dimStyle.Render("tokens:"), b.TokensUsed, limits.MaxTokensPerDay)
			fmt.Printf("    %s %d / %d\n", dimStyle.Render("runs:"), b.Runs, limits.MaxRunsPerDay)
			fmt.Printf("    %s $%.3f / $%.2f\n", dimStyle.Render("cost:"), b.EstimatedCost, limits.MaxCostPerDay)
			if b.CircuitBroken {
				fmt.Printf("    %s\n", errStyle.Render(fmt.Sprintf(
					"circuit OPEN after %d consecutive failures (reset with 'assistant guard reset %s')",
					b.ConsecutiveFailures, name)))
			} else if b.ConsecutiveFailures > 0 {
				fmt.Printf("    %s %d consecutive failure(s)\n", dimStyle.Render("breaker:"), b.ConsecutiveFailures)
			}
			fmt.Println()
		}
		return nil
	},
}

var guardKillCmd = &cobra.Command{
	Use:   "kill on|off",
	Short: "Toggle the global kill switch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		ctx := context.Background()
		switch args[0] {
		case "on":
			k.guard.ActivateKillSwitch(ctx)
			fmt.Println("kill switch activated: all agent runs are disabled")
		case "off":
			k.guard.DeactivateKillSwitch(ctx)
			fmt.Println("kill switch deactivated")
		default:
			return fmt.Errorf("expected 'on' or 'off', got %q", args[0])
		}
		return nil
	},
}

var guardResetCmd = &cobra.Command{
	Use:   "reset <agent>",
	Short: "Close an agent's circuit breaker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		k.guard.ResetCircuitBreaker(context.Background(), args[0])
		fmt.Printf("circuit breaker reset for %s\n", args[0])
		return nil
	},
}

func init() {
	guardCmd.AddCommand(guardStatusCmd)
	guardCmd.AddCommand(guardKillCmd)
	guardCmd.AddCommand(guardResetCmd)
}
