package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt assembles the system message for one agent run. The agent's
// identity and goal come from the roster; the tool list mirrors exactly
// what the registry will let this agent call.
func SystemPrompt(name, role, goal string, toolNames []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s.\n", name, role)
	if goal != "" {
		fmt.Fprintf(&b, "Your standing goal: %s\n", goal)
	}
	b.WriteString("\nYou work in short think-act-observe cycles. ")
	b.WriteString("Use the available tools to gather information and take action. ")
	b.WriteString("When you have enough to answer, reply with plain text and no tool calls.\n")

	if len(toolNames) > 0 {
		b.WriteString("\nAvailable tools: ")
		b.WriteString(strings.Join(toolNames, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Call tools only when their result changes your answer.\n")
	b.WriteString("- If a tool call is denied, adapt and continue without it.\n")
	b.WriteString("- Keep the final answer short and actionable.\n")
	return b.String()
}

// FinalSummaryPrompt is appended when the loop budget forces a last call
// with tools disabled.
const FinalSummaryPrompt = "You have reached your step limit. Summarize what you found and what remains unfinished. Do not request any more tools."
