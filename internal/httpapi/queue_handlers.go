package httpapi

import (
	"net/http"
	"strings"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/queue"

	"github.com/go-chi/chi/v5"
)

type issueOnsiteRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid"`
	Phone     string `json:"phone_number" validate:"required"`
	PartySize int    `json:"party_size" validate:"required,min=1,max=100"`
}

type issueRemoteRequest struct {
	RequestID        string `json:"request_id" validate:"omitempty,uuid"`
	Phone            string `json:"phone_number" validate:"required"`
	PartySize        int    `json:"party_size" validate:"required,min=1,max=100"`
	VerificationCode string `json:"verification_code" validate:"required,len=6,numeric"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=seated no_show cancelled"`
}

func (h *Handler) handleIssueOnsite(w http.ResponseWriter, r *http.Request) {
	var req issueOnsiteRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.IssueOnsiteTicket(r.Context(), queue.IssueRequest{
		RequestID: req.RequestID,
		Phone:     req.Phone,
		PartySize: req.PartySize,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeIssued(w, result)
}

func (h *Handler) handleIssueRemote(w http.ResponseWriter, r *http.Request) {
	var req issueRemoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.IssueRemoteTicket(r.Context(), queue.IssueRequest{
		RequestID: req.RequestID,
		Phone:     req.Phone,
		PartySize: req.PartySize,
		Code:      req.VerificationCode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeIssued(w, result)
}

func writeIssued(w http.ResponseWriter, result queue.IssueResult) {
	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, result.Ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	class, ok := models.ParseTableClass(chi.URLParam(r, "tableClassId"))
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "table type must be 1, 2 or 3")
		return
	}
	result, err := h.engine.CallNext(r.Context(), class)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSetTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.SetTicketStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.QueueStatus(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleLookupTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.engine.LookupTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Public lookups never echo the phone number back.
	ticket.Phone = ""
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.TicketEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleWaitingList(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.WaitingList(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	records, err := h.engine.Records(r.Context(), query.Get("date"), query.Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleTableTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.TableTypes())
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stats, err := h.engine.Statistics(r.Context(), query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleDailyStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.DailyStatistics(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
