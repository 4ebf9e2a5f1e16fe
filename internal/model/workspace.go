package model

// Tone selects the register of the bot's answers.
type Tone string

const (
	ToneFormal   Tone = "formal"
	ToneFriendly Tone = "friendly"
	ToneCasual   Tone = "casual"
)

// Widget defaults used when a workspace has no bot settings row.
const (
	DefaultBotName      = "Support Bot"
	DefaultGreeting     = "Hello! How can I help you today?"
	DefaultPrimaryColor = "#0066FF"
)

// BotConfig is a workspace's bot settings.
type BotConfig struct {
	BotName      string `json:"bot_name"`
	Greeting     string `json:"greeting_message"`
	Tone         Tone   `json:"tone"`
	PrimaryColor string `json:"primary_color"`
}

// Limits are the plan limits that apply to a workspace. Zero means unlimited.
type Limits struct {
	MaxDocuments             int `json:"max_documents"`
	MaxConversationsPerMonth int `json:"max_conversations"`
}

// Workspace is a tenant together with its bot configuration.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PublicKey string    `json:"public_key"`
	Bot       BotConfig `json:"bot"`
	Limits    Limits    `json:"limits"`
}

// WidgetConfig is the public configuration served to the embedded widget.
type WidgetConfig struct {
	WorkspaceName string `json:"workspaceName"`
	BotName       string `json:"botName"`
	Greeting      string `json:"greeting"`
	PrimaryColor  string `json:"primaryColor"`
}

// WidgetConfig returns the widget configuration with defaults applied.
func (w *Workspace) WidgetConfig() WidgetConfig {
	cfg := WidgetConfig{
		WorkspaceName: w.Name,
		BotName:       w.Bot.BotName,
		Greeting:      w.Bot.Greeting,
		PrimaryColor:  w.Bot.PrimaryColor,
	}
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.PrimaryColor == "" {
		cfg.PrimaryColor = DefaultPrimaryColor
	}
	return cfg
}
