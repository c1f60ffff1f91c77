// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Kkleytt/NightScout-New/internal/auth"
)

// HTTPHandlers exposes the persisted telemetry over a small authenticated
// REST facade: typed writes for the sync parser, read-back queries for
// display clients, and the privileged raw-command endpoint for cursor reads.
type HTTPHandlers struct {
	store  *SQLStore
	q      Querier
	jwt    *JWTAuth
	users  *UserRegistry
	logger *slog.Logger
}

// NewHTTPHandlers creates the facade handler set.
func NewHTTPHandlers(store *SQLStore, q Querier, jwtAuth *JWTAuth,
	users *UserRegistry, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{store: store, q: q, jwt: jwtAuth, users: users, logger: logger}
}

// Router assembles the facade routes.
func (h *HTTPHandlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/token", h.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Put("/put/sugar", h.handlePutSugar)
		r.Put("/put/insulin", h.handlePutInsulin)
		r.Put("/put/device", h.handlePutDevice)
		r.Post("/post/device", h.handlePostDevice)
		r.Put("/put/command", h.handleCommand)
		r.Put("/create/new-user", h.handleCreateUser)
		r.Get("/get/{stream}/last", h.handleGetLast)
		r.Get("/get/{stream}/id", h.handleGetByID)
		r.Get("/get/{stream}/date", h.handleGetByDate)
	})
	return r
}

// requireAuth verifies the bearer token and stores the subject in the
// request context.
func (h *HTTPHandlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := h.jwt.SubjectFromRequest(r)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetSubject(r.Context(), subject)))
	})
}

func (h *HTTPHandlers) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse credentials")
		return
	}
	if !h.users.Authenticate(req.Username, req.Password) {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", "incorrect username or password")
		return
	}
	token, err := h.jwt.GenerateToken(req.Username)
	if err != nil {
		h.logger.Error("token generation failed", "error", err, "user", req.Username)
		h.writeError(w, http.StatusInternalServerError, "token_failed", "failed to issue token")
		return
	}
	h.logger.Info("issued bearer token", "user", req.Username)
	h.writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *HTTPHandlers) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse credentials")
		return
	}
	created, err := h.users.AddUser(req.Username, req.Password)
	if err != nil {
		h.logger.Error("user creation failed", "error", err, "user", req.Username)
		h.writeError(w, http.StatusInternalServerError, "user_create_failed", "failed to save user")
		return
	}
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: created})
}

func (h *HTTPHandlers) handlePutSugar(w http.ResponseWriter, r *http.Request) {
	var rec SugarRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse sugar record")
		return
	}
	sample, err := rec.sample(h.store.normalizer)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.store.InsertGlucose(r.Context(), sample); err != nil {
		h.logger.Error("sugar insert failed", "error", err, "id", rec.ID)
		h.writeError(w, http.StatusBadRequest, "write_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: true})
}

func (h *HTTPHandlers) handlePutInsulin(w http.ResponseWriter, r *http.Request) {
	var rec InsulinRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse insulin record")
		return
	}
	event, err := rec.event(h.store.normalizer)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.store.InsertDose(r.Context(), event); err != nil {
		h.logger.Error("insulin insert failed", "error", err, "id", rec.ID)
		h.writeError(w, http.StatusBadRequest, "write_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: true})
}

func (h *HTTPHandlers) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	h.writeDevice(w, r, h.store.InsertDevice)
}

func (h *HTTPHandlers) handlePostDevice(w http.ResponseWriter, r *http.Request) {
	h.writeDevice(w, r, h.store.UpdateDevice)
}

func (h *HTTPHandlers) writeDevice(w http.ResponseWriter, r *http.Request,
	write func(ctx context.Context, snapshot DeviceSnapshot) error) {
	var rec DeviceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse device record")
		return
	}
	snapshot, err := rec.snapshot(h.store.normalizer)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := write(r.Context(), snapshot); err != nil {
		h.logger.Error("device write failed", "error", err)
		h.writeError(w, http.StatusBadRequest, "write_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: true})
}

func (h *HTTPHandlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse command")
		return
	}
	// Raw queries are privileged; keep an audit trail of who ran what.
	if subject, ok := auth.GetSubject(r.Context()); ok {
		h.logger.Debug("raw command", "user", subject, "query", req.Query)
	}
	rows, err := h.q.Query(r.Context(), req.Query, req.Params...)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "query_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *HTTPHandlers) handleGetLast(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "stream") {
	case "sugar":
		samples, err := h.store.LastGlucose(r.Context(), 1)
		if err != nil || len(samples) == 0 {
			h.writeNotFound(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sugarRecord(samples[0]))
	case "insulin":
		event, err := h.store.LastDose(r.Context())
		if err != nil || event == nil {
			h.writeNotFound(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, insulinRecord(*event))
	case "device":
		snapshot, err := h.store.LoadDevice(r.Context())
		if err != nil || snapshot == nil {
			h.writeNotFound(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, deviceRecord(*snapshot))
	default:
		h.writeError(w, http.StatusNotFound, "unknown_stream", "stream must be sugar, insulin or device")
	}
}

func (h *HTTPHandlers) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}
	switch chi.URLParam(r, "stream") {
	case "sugar":
		sample, err := h.store.GlucoseByID(r.Context(), id)
		if err != nil || sample == nil {
			h.writeNotFound(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sugarRecord(*sample))
	case "insulin":
		event, err := h.store.DoseByID(r.Context(), id)
		if err != nil || event == nil {
			h.writeNotFound(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, insulinRecord(*event))
	default:
		h.writeError(w, http.StatusNotFound, "unknown_stream", "id lookup supports sugar and insulin")
	}
}

func (h *HTTPHandlers) handleGetByDate(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "start and end are required")
		return
	}
	switch chi.URLParam(r, "stream") {
	case "sugar":
		samples, err := h.store.GlucoseRange(r.Context(), start, end)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "query_failed", err.Error())
			return
		}
		records := make([]SugarRecord, 0, len(samples))
		for _, s := range samples {
			records = append(records, sugarRecord(s))
		}
		h.writeJSON(w, http.StatusOK, records)
	case "insulin":
		events, err := h.store.DoseRange(r.Context(), start, end)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "query_failed", err.Error())
			return
		}
		records := make([]InsulinRecord, 0, len(events))
		for _, e := range events {
			records = append(records, insulinRecord(e))
		}
		h.writeJSON(w, http.StatusOK, records)
	default:
		h.writeError(w, http.StatusNotFound, "unknown_stream", "date lookup supports sugar and insulin")
	}
}

func (h *HTTPHandlers) writeNotFound(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "query_failed", err.Error())
		return
	}
	h.writeError(w, http.StatusNotFound, "not_found", "no matching record")
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
