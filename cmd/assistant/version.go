package main

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Overridden via -ldflags at release time.
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
		valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

		row := func(label, value string) {
			fmt.Printf("%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
		}

		fmt.Println(titleStyle.Render("assistant"))
		fmt.Println()
		row("Version", Version)
		row("Git Commit", GitCommit)
		row("Build Date", BuildDate)
		row("Go Version", runtime.Version())
		row("Platform", runtime.GOOS+"/"+runtime.GOARCH)
	},
}
