package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

type roomRequest struct {
	Number      string   `json:"number" validate:"required,max=32"`
	Name        string   `json:"name" validate:"max=256"`
	Type        string   `json:"type" validate:"required,max=64"`
	Location    string   `json:"location" validate:"max=256"`
	Price       int64    `json:"price" validate:"gte=0"`
	Capacity    int      `json:"capacity" validate:"gte=0,lte=16"`
	Status      string   `json:"status" validate:"omitempty,oneof=available maintenance"`
	Amenities   []string `json:"amenities" validate:"max=64,dive,max=128"`
	Description string   `json:"description" validate:"max=4096"`
}

// AddRoom регистрирует номер.
func (h *Handler) AddRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room := &model.Room{
		Number:      req.Number,
		Name:        req.Name,
		Type:        req.Type,
		Location:    req.Location,
		Price:       req.Price,
		Capacity:    req.Capacity,
		Status:      model.RoomStatus(req.Status),
		Amenities:   req.Amenities,
		Description: req.Description,
	}

	if err := h.rooms.Add(r.Context(), room); err != nil {
		h.writeError(w, r, "add room", err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// GetRoom возвращает номер по идентификатору.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid room id")
		return
	}

	room, err := h.rooms.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get room", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

type roomStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available maintenance"`
}

// SetRoomStatus переводит номер на обслуживание или возвращает в работу.
func (h *Handler) SetRoomStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req roomStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.rooms.SetStatus(r.Context(), id, model.RoomStatus(req.Status)); err != nil {
		h.writeError(w, r, "set room status", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type availabilityResponse struct {
	RoomID    int64  `json:"room_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Available bool   `json:"available"`
}

// RoomAvailability сообщает, свободен ли номер на интервал check_in..check_out.
func (h *Handler) RoomAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid room id")
		return
	}

	q := r.URL.Query()
	in, err := parseDate(q.Get("check_in"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "check_in must be a YYYY-MM-DD date")
		return
	}
	out, err := parseDate(q.Get("check_out"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "check_out must be a YYYY-MM-DD date")
		return
	}

	available, err := h.availability.IsAvailable(r.Context(), id, in, out, "")
	if err != nil {
		h.writeError(w, r, "room availability", err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		RoomID:    id,
		CheckIn:   in.Format(time.DateOnly),
		CheckOut:  out.Format(time.DateOnly),
		Available: available,
	})
}

// SearchRooms ищет номера по атрибутам и, если заданы даты, по доступности.
func (h *Handler) SearchRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.RoomFilter{
		Query:    q.Get("q"),
		Type:     q.Get("type"),
		Location: q.Get("location"),
		Sort:     model.SortOrder(q.Get("sort")),
	}

	var err error
	if filter.MinPrice, err = optionalInt(q.Get("min_price")); err != nil {
		writeMessage(w, http.StatusBadRequest, "min_price must be an integer")
		return
	}
	if filter.MaxPrice, err = optionalInt(q.Get("max_price")); err != nil {
		writeMessage(w, http.StatusBadRequest, "max_price must be an integer")
		return
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("include_unavailable"); v != "" {
		if filter.IncludeUnavailable, err = strconv.ParseBool(v); err != nil {
			writeMessage(w, http.StatusBadRequest, "include_unavailable must be a boolean")
			return
		}
	}

	var checkIn, checkOut *time.Time
	if v := q.Get("check_in"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "check_in must be a YYYY-MM-DD date")
			return
		}
		checkIn = &t
	}
	if v := q.Get("check_out"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "check_out must be a YYYY-MM-DD date")
			return
		}
		checkOut = &t
	}

	rooms, err := h.availability.FindAvailableRooms(r.Context(), filter, checkIn, checkOut)
	if err != nil {
		h.writeError(w, r, "search rooms", err)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func optionalInt(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
