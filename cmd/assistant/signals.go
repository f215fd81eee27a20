package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Elore26/assistant/internal/signal"
)

var (
	signalAs       string
	signalType     string
	signalMessage  string
	signalTarget   string
	signalPriority int
	signalTTLHours int
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show active signals on the bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
		criticalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
		typeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
		dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

		bus := signal.NewBus(signalAs, k.store, logger)
		sum := bus.ActiveSummary(context.Background())

		fmt.Println(headerStyle.Render(fmt.Sprintf("Active Signals (%d)", sum.Total)))
		if sum.Total == 0 {
			fmt.Println(dimStyle.Render("  the bus is quiet"))
			return nil
		}
		for _, s := range sum.Critical {
			fmt.Printf("  %s %s %s\n",
				criticalStyle.Render("!"),
				typeStyle.Render(s.Type),
				s.Message)
		}
		for prio, count := range sum.ByPriority {
			fmt.Printf("  %s %d\n", dimStyle.Render(priorityName(prio)+":"), count)
		}
		fmt.Println()
		for source, count := range sum.BySource {
			fmt.Printf("  %s %d signal(s)\n", dimStyle.Render("from "+source+":"), count)
		}
		return nil
	},
}

var signalsEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Put a signal on the bus by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		if signalType == "" {
			return fmt.Errorf("--type is required")
		}
		if signalMessage == "" {
			return fmt.Errorf("--message is required")
		}
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		bus := signal.NewBus(signalAs, k.store, logger)
		id := bus.Emit(context.Background(), signalType, signalMessage, nil, signal.EmitOptions{
			Target:   signalTarget,
			Priority: signalPriority,
			TTL:      time.Duration(signalTTLHours) * time.Hour,
		})
		if id == "" {
			return fmt.Errorf("signal was not accepted by the store")
		}
		fmt.Printf("emitted %s (%s)\n", signalType, id)
		return nil
	},
}

func priorityName(p int) string {
	switch p {
	case signal.PriorityCritical:
		return "critical"
	case signal.PriorityWarning:
		return "warning"
	case signal.PriorityInfo:
		return "info"
	default:
		return fmt.Sprintf("priority %d", p)
	}
}

func init() {
	signalsCmd.PersistentFlags().StringVar(&signalAs, "as", "operator", "agent identity to read or emit as")
	signalsEmitCmd.Flags().StringVar(&signalType, "type", "", "signal type, e.g. market_alert")
	signalsEmitCmd.Flags().StringVar(&signalMessage, "message", "", "human readable message")
	signalsEmitCmd.Flags().StringVar(&signalTarget, "target", "", "target agent (empty broadcasts)")
	signalsEmitCmd.Flags().IntVar(&signalPriority, "priority", signal.PriorityInfo, "1 critical, 2 warning, 3 info")
	signalsEmitCmd.Flags().IntVar(&signalTTLHours, "ttl", 0, "hours until expiry (0 uses the default)")
	signalsCmd.AddCommand(signalsEmitCmd)
}
