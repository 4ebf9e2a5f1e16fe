package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "support.t1.c1.msg.assistant", TurnSubject("t1", "c1", model.RoleAssistant))
	assert.Equal(t, "support.t1.c1.event.escalated", EventSubject("t1", "c1", model.EventTypeEscalated))
	assert.Equal(t, "support.t1.c1.event.>", ConversationEventsFilter("t1", "c1"))
}

func TestSubjects_EscapeTokens(t *testing.T) {
	assert.Equal(t, "support.acme_eu.c_1.event.resolved", EventSubject("acme.eu", "c*1", model.EventTypeResolved))
	assert.Equal(t, "support._._.msg.user", TurnSubject("", "", model.RoleUser))
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.Equal(t, []string{"support.>"}, cfg.Subjects)
	assert.True(t, cfg.DenyDelete)
	assert.True(t, cfg.DenyPurge)
	assert.Equal(t, jetstream.FileStorage, cfg.Storage)
}

func TestDecodeEvent(t *testing.T) {
	event := model.ConversationEvent{
		ID:             "e1",
		ConversationID: "c1",
		TenantID:       "t1",
		Type:           model.EventTypeEscalated,
		Reason:         "low_confidence",
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	got, err := decodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event, *got)

	_, err = decodeEvent([]byte("{"))
	assert.Error(t, err)
}
