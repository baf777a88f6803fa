package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/hotel-booking/internal/middleware"
	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/validation"
)

type discountRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	Percent   int    `json:"percent" validate:"gte=0,lte=100"`
	ValidFrom string `json:"valid_from" validate:"omitempty,datetime=2006-01-02"`
	ValidTo   string `json:"valid_to" validate:"omitempty,datetime=2006-01-02"`
	Active    *bool  `json:"active"`
}

type discountResponse struct {
	Code      string `json:"code"`
	Percent   int    `json:"percent"`
	ValidFrom string `json:"valid_from,omitempty"`
	ValidTo   string `json:"valid_to,omitempty"`
	Active    bool   `json:"active"`
}

// CreateDiscount регистрирует промокод. Без поля active промокод создаётся активным.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if !h.decode(w, r, &req) {
		return
	}

	d := &model.Discount{Code: req.Code, Percent: req.Percent, Active: true}
	if req.Active != nil {
		d.Active = *req.Active
	}

	var err error
	if req.ValidFrom != "" {
		if d.ValidFrom, err = parseDate(req.ValidFrom); err != nil {
			writeMessage(w, http.StatusBadRequest, "valid_from must be a YYYY-MM-DD date")
			return
		}
	}
	if req.ValidTo != "" {
		if d.ValidTo, err = parseDate(req.ValidTo); err != nil {
			writeMessage(w, http.StatusBadRequest, "valid_to must be a YYYY-MM-DD date")
			return
		}
		// Окно действия включает весь последний день.
		d.ValidTo = d.ValidTo.Add(24*time.Hour - time.Nanosecond)
	}

	if err := h.discounts.Create(r.Context(), d); err != nil {
		h.writeError(w, r, "create discount", err)
		return
	}

	resp := discountResponse{Code: d.Code, Percent: d.Percent, Active: d.Active}
	if !d.ValidFrom.IsZero() {
		resp.ValidFrom = d.ValidFrom.Format(time.DateOnly)
	}
	if !d.ValidTo.IsZero() {
		resp.ValidTo = d.ValidTo.Format(time.DateOnly)
	}

	writeJSON(w, http.StatusCreated, resp)
}

type discountCheckResponse struct {
	Code    string `json:"code"`
	Percent int    `json:"percent"`
}

// CheckDiscount проверяет, может ли текущий пользователь применить промокод.
func (h *Handler) CheckDiscount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	code := validation.NormalizeDiscountCode(chi.URLParam(r, "code"))
	percent, err := h.discounts.Check(r.Context(), code, userID)
	if err != nil {
		h.writeError(w, r, "check discount", err)
		return
	}

	writeJSON(w, http.StatusOK, discountCheckResponse{Code: code, Percent: percent})
}
