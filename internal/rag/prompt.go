package rag

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/supportdesk/internal/model"
)

// NoContextMarker replaces the knowledge context when nothing relevant was
// retrieved.
const NoContextMarker = "No relevant information found in the knowledge base."

// MaxHistoryTurns caps the prior turns rendered into a prompt.
const MaxHistoryTurns = 10

var toneInstructions = map[model.Tone]string{
	model.ToneFormal:   "Respond in a professional, formal tone. Use complete sentences and proper grammar.",
	model.ToneFriendly: "Respond in a warm, friendly tone. Be helpful and approachable.",
	model.ToneCasual:   "Respond in a casual, conversational tone. Be relaxed but still helpful.",
}

const rules = `IMPORTANT RULES:
1. Answer questions ONLY based on the provided context from the knowledge base.
2. If the context doesn't contain relevant information to answer the question, say so politely and offer to connect them with a human agent.
3. Never make up information that isn't in the context.
4. Keep responses concise and helpful.
5. If asked about something completely unrelated to customer support, politely redirect the conversation.`

// ToneInstruction returns the instruction line for tone. Unknown or empty
// tones read as friendly.
func ToneInstruction(tone model.Tone) string {
	if s, ok := toneInstructions[tone]; ok {
		return s
	}
	return toneInstructions[model.ToneFriendly]
}

// BuildContext renders results as "[Source: name]" blocks separated by
// "---" rules, or NoContextMarker when results is empty.
func BuildContext(results []model.RetrievalResult) string {
	if len(results) == 0 {
		return NoContextMarker
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", r.Chunk.SourceName, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// RenderHistory renders turns oldest first, one per line. Visitor turns are
// labelled Customer; bot and agent turns are labelled Assistant.
func RenderHistory(turns []model.Message) string {
	lines := make([]string, len(turns))
	for i, m := range turns {
		speaker := "Assistant"
		if m.Role == model.RoleUser {
			speaker = "Customer"
		}
		lines[i] = speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// AssemblePrompt builds the single prompt sent to the generator: identity,
// tone, rules, knowledge context, prior turns and the current message, in
// that order. history must not contain the current message; only its last
// MaxHistoryTurns entries are rendered.
func AssemblePrompt(bot model.BotConfig, tenantName string, results []model.RetrievalResult, history []model.Message, message string) string {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	botName := bot.BotName
	if botName == "" {
		botName = model.DefaultBotName
	}

	var historyBlock string
	if text := RenderHistory(history); text != "" {
		historyBlock = "CONVERSATION HISTORY:\n" + text + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful customer support assistant for %s.\n\n", botName, tenantName)
	b.WriteString(ToneInstruction(bot.Tone))
	b.WriteString("\n\n")
	b.WriteString(rules)
	b.WriteString("\n\nKNOWLEDGE BASE CONTEXT:\n")
	b.WriteString(BuildContext(results))
	b.WriteString("\n\n")
	b.WriteString(historyBlock)
	b.WriteString("\n\nCurrent customer message: ")
	b.WriteString(message)

	return b.String()
}
