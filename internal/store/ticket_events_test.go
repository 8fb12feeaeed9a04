package store

import (
	"encoding/json"
	"testing"
	"time"

	"tablequeue/queue-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, ticketID string, payloads ...EventPayload) []TicketEvent {
	t.Helper()
	types := []string{EventTicketIssued, EventTicketCalled, EventTicketSeated}
	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	var events []TicketEvent
	prev := ""
	for i, payload := range payloads {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		createdAt := base.Add(time.Duration(i) * time.Minute)
		hash := ComputeTicketEventHash(prev, ticketID, types[i], raw, createdAt, i+1)
		events = append(events, TicketEvent{
			TicketID:  ticketID,
			TicketSeq: i + 1,
			Type:      types[i],
			Payload:   raw,
			CreatedAt: createdAt,
			PrevHash:  prev,
			Hash:      hash,
		})
		prev = hash
	}
	return events
}

func TestVerifyTicketEventChain(t *testing.T) {
	created := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	seated := created.Add(25 * time.Minute)
	events := buildChain(t, "t-1",
		EventPayload{TicketID: "t-1", TicketNumber: 4, TableClass: 2, Channel: "remote", PartySize: 3, Status: "waiting", CreatedAt: &created},
		EventPayload{TicketID: "t-1", CalledAt: &seated},
		EventPayload{TicketID: "t-1", Status: "seated", SeatedAt: &seated},
	)

	assert.Equal(t, 0, VerifyTicketEventChain(events))

	events[1].Payload = json.RawMessage(`{"ticket_id":"t-1","status":"cancelled"}`)
	assert.Equal(t, 2, VerifyTicketEventChain(events))
}

func TestRehydrateTicket(t *testing.T) {
	created := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	seated := created.Add(25 * time.Minute)
	events := buildChain(t, "t-1",
		EventPayload{TicketID: "t-1", TicketNumber: 4, TableClass: 2, Channel: "remote", PartySize: 3, Status: "waiting", CreatedAt: &created},
		EventPayload{TicketID: "t-1", CalledAt: &seated},
		EventPayload{TicketID: "t-1", Status: "seated", SeatedAt: &seated},
	)

	ticket, err := RehydrateTicket(events)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeated, ticket.Status)
	assert.Equal(t, "M4", ticket.FormattedNumber)
	assert.Equal(t, 3, ticket.PartySize)
	require.NotNil(t, ticket.SeatedAt)
	assert.True(t, ticket.SeatedAt.Equal(seated))
}
