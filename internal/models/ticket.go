package models

import "time"

type Ticket struct {
	TicketID               string     `json:"ticket_id"`
	RequestID              string     `json:"request_id,omitempty"`
	CustomerID             string     `json:"customer_id"`
	QueueDate              string     `json:"queue_date"`
	TableClass             TableClass `json:"table_type_id"`
	TableClassName         string     `json:"table_type"`
	TicketNumber           int        `json:"ticket_number"`
	FormattedNumber        string     `json:"formatted_number"`
	PartySize              int        `json:"party_size"`
	Channel                string     `json:"channel"`
	Status                 string     `json:"status"`
	WaitingCountAtCreation int        `json:"waiting_count_at_creation"`
	CreatedAt              time.Time  `json:"created_at"`
	SeatedAt               *time.Time `json:"seated_at,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
	Phone                  string     `json:"phone_number,omitempty"`
}

// Decorate fills the presentation fields derived from TableClass and TicketNumber.
func (t *Ticket) Decorate() {
	t.TableClassName = t.TableClass.String()
	t.FormattedNumber = t.TableClass.Format(t.TicketNumber)
}

func (t Ticket) IsRemote() bool {
	return t.Channel == ChannelRemote
}

const (
	StatusWaiting   = "waiting"
	StatusSeated    = "seated"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
)

const (
	ChannelOnsite = "onsite"
	ChannelRemote = "remote"
)

// WaitingTicket is a row of the host-stand waiting list.
type WaitingTicket struct {
	Ticket
	MaskedPhone    string `json:"masked_phone"`
	FormattedTime  string `json:"formatted_time"`
	WaitingMinutes int    `json:"waiting_minutes"`
}

// MaskPhone keeps the first four and last three digits.
func MaskPhone(phone string) string {
	if len(phone) <= 7 {
		return phone
	}
	return phone[:4] + "****" + phone[len(phone)-3:]
}
