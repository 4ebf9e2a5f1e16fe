package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/supportdesk/internal/model"
)

func TestValidateTurn(t *testing.T) {
	confidence := 0.7
	sources := []model.SourceSnapshot{{Content: "c", SourceName: "n"}}

	tests := []struct {
		name  string
		msg   model.Message
		valid bool
	}{
		{"user", model.Message{ConversationID: "c1", Role: model.RoleUser, Content: "hi"}, true},
		{"assistant with sources", model.Message{ConversationID: "c1", Role: model.RoleAssistant, Sources: sources, Confidence: &confidence}, true},
		{"agent", model.Message{ConversationID: "c1", Role: model.RoleAgent, Content: "hello"}, true},
		{"unknown role", model.Message{ConversationID: "c1", Role: "system"}, false},
		{"no conversation", model.Message{Role: model.RoleUser}, false},
		{"user with sources", model.Message{ConversationID: "c1", Role: model.RoleUser, Sources: sources}, false},
		{"agent with confidence", model.Message{ConversationID: "c1", Role: model.RoleAgent, Confidence: &confidence}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTurn(&tt.msg)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, model.ErrInvalidTurn)
			}
		})
	}
}
