package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/llm"
	"github.com/Elore26/assistant/internal/react"
	"github.com/Elore26/assistant/internal/roster"
	"github.com/Elore26/assistant/internal/types"
	"github.com/Elore26/assistant/internal/ui"
)

var (
	watchRun   bool
	approveAll bool
	notifyRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run <agent> [task]",
	Short: "Run one agent now",
	Long: `Run one agent from the roster, once, under full guardrail checks.

The task defaults to the agent's standing goal. Guardrails are consulted
before the run starts (kill switch, circuit breaker, daily budgets) and
usage is recorded afterwards.

Examples:
  assistant run career
  assistant run career "compare these two offers" --watch
  assistant run finance --notify`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()
		return runAgent(k, args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	runCmd.Flags().BoolVarP(&watchRun, "watch", "w", false, "Watch the run in a live console")
	runCmd.Flags().BoolVarP(&approveAll, "yes", "y", false, "Approve gated tool calls without prompting")
	runCmd.Flags().BoolVar(&notifyRun, "notify", false, "Send the run report to the notification channel")
}

func runAgent(k *kernel, agentName, task string) error {
	agent, ok := k.roster.Get(agentName)
	if !ok {
		return fmt.Errorf("agent %q is not in the roster (see 'assistant agents')", agentName)
	}
	if task == "" {
		task = agent.Goal
	}
	if task == "" {
		return fmt.Errorf("agent %q has no standing goal; pass a task", agentName)
	}

	ctx := context.Background()

	if decision := k.guard.CanRun(ctx, agentName); !decision.Allowed {
		denyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
		fmt.Println(denyStyle.Render("Run denied: " + decision.Reason))
		return fmt.Errorf("guardrail denied run for %s", agentName)
	}

	opts := buildRunOptions(k, agent, task)
	loop := react.New(k.llm, k.registry, k.store, logger)

	var result types.AgentResult
	if watchRun {
		events := make(chan types.AgentEvent, 64)
		opts.Events = events
		done := make(chan types.AgentResult, 1)
		go func() {
			done <- loop.Run(ctx, opts)
			close(events)
		}()

		p := tea.NewProgram(ui.NewRunModel(agentName, task, events), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.Warn("console failed, run continues", zap.Error(err))
		}
		result = <-done
	} else {
		result = loop.Run(ctx, opts)
	}

	k.guard.RecordUsage(ctx, agentName, result.TokensUsed, result.TotalToolCalls, modelFor(agent), result.Success)

	printResult(result)
	if notifyRun {
		if err := k.notifier.Notify(ctx, formatReport(result)); err != nil {
			logger.Warn("report delivery failed", zap.Error(err))
		}
	}
	return nil
}

// buildRunOptions folds global limits, roster overrides and approval
// wiring into loop options.
func buildRunOptions(k *kernel, agent roster.Agent, task string) react.Options {
	limits := k.guard.Limits()

	maxLoops := limits.MaxLoopsPerRun
	if agent.Budgets.MaxLoops > 0 && agent.Budgets.MaxLoops < maxLoops {
		maxLoops = agent.Budgets.MaxLoops
	}
	maxToolCalls := limits.MaxToolCallsPerRun
	if agent.Budgets.MaxToolCalls > 0 && agent.Budgets.MaxToolCalls < maxToolCalls {
		maxToolCalls = agent.Budgets.MaxToolCalls
	}

	toolNames := make([]string, 0)
	for _, def := range k.registry.ToolsForAgent(agent.Name) {
		if !agent.AllowsTool(def.Name) {
			continue
		}
		toolNames = append(toolNames, def.Name)
	}

	return react.Options{
		Agent:            agent.Name,
		Task:             task,
		SystemPrompt:     llm.SystemPrompt(agent.Name, agent.Role, agent.Goal, toolNames),
		Model:            modelFor(agent),
		Temperature:      cfg.LLM.Temperature,
		MaxLoops:         maxLoops,
		MaxToolCalls:     maxToolCalls,
		MaxTokensPerCall: cfg.LLM.MaxTokens,
		AllowedTools:     agent.Tools,

		OnBeforeToolCall: func(tool string, args map[string]any) (bool, string) {
			if !agent.AllowsTool(tool) {
				return false, fmt.Sprintf("tool %q is not in %s's tool list", tool, agent.Name)
			}
			d := k.guard.CanUseTool(tool)
			if !d.Allowed {
				return false, d.Reason
			}
			if d.NeedsApproval && !approveGated(tool, args) {
				return false, fmt.Sprintf("tool %q requires approval and was not approved", tool)
			}
			return true, ""
		},
		OnApprovalNeeded: approveGated,
		AutoApproveGated: cfg.Guardrails.AutoApproveGated || approveAll,
	}
}

func modelFor(agent roster.Agent) string {
	if agent.Model != "" {
		return agent.Model
	}
	return cfg.LLM.Model
}

// approveGated prompts on the terminal. In watch mode or with --yes the
// prompt never fires; the registry handles auto-approval.
func approveGated(tool string, args map[string]any) bool {
	if approveAll || cfg.Guardrails.AutoApproveGated {
		return true
	}
	if watchRun {
		// No usable stdin under the live console; deny and let the model
		// carry on without the tool.
		return false
	}

	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	fmt.Printf("%s %s %v\n", warnStyle.Render("Approval needed:"), tool, args)
	fmt.Print("Allow this call? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printResult(r types.AgentResult) {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	fmt.Println()
	fmt.Println(headerStyle.Render(r.Agent) + dimStyle.Render(" · "+r.Task))

	switch {
	case r.StoppedByGuardrail:
		fmt.Println(warnStyle.Render("Stopped by guardrail: ") + r.GuardrailReason)
	case r.Success:
		fmt.Println(okStyle.Render("Completed"))
	default:
		fmt.Println(errStyle.Render("Failed"))
	}

	if r.Output != "" {
		fmt.Println()
		fmt.Println(r.Output)
	}
	fmt.Println()
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d loop(s) · %d tool call(s) · %d tokens · %s",
		r.TotalLoops, r.TotalToolCalls, r.TokensUsed, r.Duration.Round(time.Millisecond))))
}

func formatReport(r types.AgentResult) string {
	status := "✅ completed"
	if r.StoppedByGuardrail {
		status = "⚠️ stopped by guardrail: " + r.GuardrailReason
	} else if !r.Success {
		status = "❌ failed"
	}
	return fmt.Sprintf("*%s* %s\n%s", r.Agent, status, r.Output)
}
