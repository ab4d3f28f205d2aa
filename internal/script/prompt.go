package script

import (
	"fmt"
	"strings"
)

const (
	systemInstruction = "You craft succinct, natural sounding call scripts. Keep responses under 200 words."

	defaultTone  = "Professional and upbeat"
	defaultNotes = "None"
)

func buildUserPrompt(b Brief) string {
	return strings.Join([]string{
		"You are a professional outbound calling agent. Create a concise call script following this structure:",
		fmt.Sprintf("1. Friendly greeting by the agent mentioning the customer name (%s).", strings.TrimSpace(b.CustomerName)),
		fmt.Sprintf("2. One-sentence purpose statement describing the goal (%s) and product (%s).",
			strings.TrimSpace(b.Goal), strings.TrimSpace(b.Product)),
		"3. Two personalized talking points or benefits.",
		"4. A closing call-to-action asking for the next step.",
		"",
		fmt.Sprintf("Tone: %s.", orDefault(b.Tone, defaultTone)),
		fmt.Sprintf("Additional notes: %s.", orDefault(b.Notes, defaultNotes)),
		"",
		`Return the script as plain text with each agent line prefixed by "Agent:" and customer responses prefixed by "Customer:" where natural.`,
	}, "\n")
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
