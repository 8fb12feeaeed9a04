package store

import "tablequeue/queue-service/internal/models"

// transitionMap lists, per target status, the statuses a ticket may leave.
var transitionMap = map[string][]string{
	models.StatusSeated:    {models.StatusWaiting},
	models.StatusNoShow:    {models.StatusWaiting},
	models.StatusCancelled: {models.StatusWaiting},
}

func ValidTransition(toStatus, fromStatus string) bool {
	allowed, ok := transitionMap[toStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// IsSettableStatus reports whether staff may move a ticket into status.
func IsSettableStatus(status string) bool {
	_, ok := transitionMap[status]
	return ok
}
