package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type phoneRequest struct {
	Phone string `json:"phone_number" validate:"required"`
}

type verifyCodeRequest struct {
	Phone string `json:"phone_number" validate:"required"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type verifyByIDRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type setBlacklistRequest struct {
	Blacklisted *bool `json:"blacklisted" validate:"required"`
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.RequestVerification(r.Context(), req.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleVerifyByID(w http.ResponseWriter, r *http.Request) {
	var req verifyByIDRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.VerifyByID(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCheckCustomer(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.engine.CheckCustomer(r.Context(), req.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	customers, err := h.engine.ListBlacklist(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) handleAddToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	customer, err := h.engine.AddToBlacklist(r.Context(), req.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleSetBlacklist(w http.ResponseWriter, r *http.Request) {
	var req setBlacklistRequest
	if !h.decode(w, r, &req) {
		return
	}
	customer, err := h.engine.SetBlacklist(r.Context(), chi.URLParam(r, "id"), *req.Blacklisted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}
