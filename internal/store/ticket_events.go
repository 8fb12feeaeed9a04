package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"tablequeue/queue-service/internal/models"
)

const (
	EventTicketIssued    = "ticket.issued"
	EventTicketCalled    = "ticket.called"
	EventTicketSeated    = "ticket.seated"
	EventTicketNoShow    = "ticket.no_show"
	EventTicketCancelled = "ticket.cancelled"
)

// EventForStatus names the ledger event recorded when a ticket enters status.
func EventForStatus(status string) string {
	switch status {
	case models.StatusSeated:
		return EventTicketSeated
	case models.StatusNoShow:
		return EventTicketNoShow
	case models.StatusCancelled:
		return EventTicketCancelled
	default:
		return ""
	}
}

type TicketEvent struct {
	TicketID  string          `json:"ticket_id"`
	TicketSeq int             `json:"ticket_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type EventPayload struct {
	TicketID     string     `json:"ticket_id"`
	TicketNumber int        `json:"ticket_number,omitempty"`
	TableClass   int        `json:"table_class,omitempty"`
	QueueDate    string     `json:"queue_date,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	PartySize    int        `json:"party_size,omitempty"`
	Status       string     `json:"status,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	SeatedAt     *time.Time `json:"seated_at,omitempty"`
}

func ComputeTicketEventHash(prevHash, ticketID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyTicketEventChain checks sequence numbers, links and hashes. It returns
// the sequence number of the first bad event, or 0 when the chain holds.
func VerifyTicketEventChain(events []TicketEvent) int {
	prev := ""
	for i, event := range events {
		if event.TicketSeq != i+1 || event.PrevHash != prev {
			return event.TicketSeq
		}
		if ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.TicketSeq) != event.Hash {
			return event.TicketSeq
		}
		prev = event.Hash
	}
	return 0
}

// RehydrateTicket replays event payloads into the ticket state they describe.
func RehydrateTicket(events []TicketEvent) (models.Ticket, error) {
	var ticket models.Ticket
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload EventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Ticket{}, err
		}
		if payload.TicketID != "" {
			ticket.TicketID = payload.TicketID
		}
		if payload.TicketNumber != 0 {
			ticket.TicketNumber = payload.TicketNumber
		}
		if payload.TableClass != 0 {
			ticket.TableClass = models.TableClass(payload.TableClass)
		}
		if payload.QueueDate != "" {
			ticket.QueueDate = payload.QueueDate
		}
		if payload.Channel != "" {
			ticket.Channel = payload.Channel
		}
		if payload.PartySize != 0 {
			ticket.PartySize = payload.PartySize
		}
		if payload.Status != "" {
			ticket.Status = payload.Status
		}
		if payload.CreatedAt != nil {
			ticket.CreatedAt = *payload.CreatedAt
		}
		if payload.SeatedAt != nil {
			ticket.SeatedAt = payload.SeatedAt
		}
	}
	ticket.Decorate()
	return ticket, nil
}
