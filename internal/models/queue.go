package models

import "time"

// ClassState is one table class of a day's queue state.
type ClassState struct {
	TableClass    TableClass `json:"table_type_id"`
	Name          string     `json:"table_type"`
	CurrentCalled int        `json:"current_called"`
	LastIssued    int        `json:"last_issued"`
	WaitingCount  int        `json:"waiting_count"`
}

type QueueStatus struct {
	QueueDate string       `json:"queue_date"`
	Classes   []ClassState `json:"classes"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s QueueStatus) Class(class TableClass) (ClassState, bool) {
	for _, state := range s.Classes {
		if state.TableClass == class {
			return state, true
		}
	}
	return ClassState{}, false
}

type Statistics struct {
	StartDate           string         `json:"start_date"`
	EndDate             string         `json:"end_date"`
	TotalTickets        int            `json:"total_tickets"`
	AvgWaitMinutes      map[string]int `json:"avg_wait_time"`
	ChannelDistribution map[string]int `json:"queue_type_distribution"`
	StatusDistribution  map[string]int `json:"status_distribution"`
	TableClassCounts    map[string]int `json:"table_type_counts"`
	HourlyDistribution  []int          `json:"hourly_distribution"`
	Partial             bool           `json:"partial,omitempty"`
}
