package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staysync/internal/app"
	"staysync/internal/domain"
)

type Handlers struct {
	Rates    *app.RateService
	Sync     *app.SyncService
	Logs     domain.SyncLogRepository
	Channels domain.ChannelRepository
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/properties/{id}", func(r chi.Router) {
		r.Get("/rates", h.resolveRates)
		r.Post("/rates", h.saveRate)
		r.Delete("/rates/{rateID}", h.deactivateRate)
		r.Get("/channels", h.listChannels)
		r.Post("/channels/{channel}/test", h.testChannel)
		r.Post("/sync", h.triggerSync)
		r.Post("/sync/{syncID}/cancel", h.cancelSync)
		r.Get("/sync-logs", h.listSyncLogs)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeError maps domain sentinels to problem+json statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEnum), errors.Is(err, domain.ErrInvalidRateEntry),
		errors.Is(err, domain.ErrUnsupportedChannel):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrChannelNotConfigured):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrChannelDisabled), errors.Is(err, domain.ErrSyncInProgress),
		errors.Is(err, domain.ErrRunFinalized):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrMissingCredentials):
		writeProblem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "internal error")
	}
}

func propertyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// ---- rates ----

type nightView struct {
	Date       string `json:"date"`
	PriceMinor int64  `json:"price_minor,omitempty"`
	Tier       string `json:"tier,omitempty"`
	Found      bool   `json:"found"`
}

func (h *Handlers) resolveRates(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	q := r.URL.Query()
	plan, err := domain.ParsePlanType(q.Get("plan"))
	if err != nil {
		writeError(w, err)
		return
	}
	occ, err := domain.ParseOccupancyType(q.Get("occupancy"))
	if err != nil {
		writeError(w, err)
		return
	}
	room := q.Get("room")
	if room == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "room is required")
		return
	}
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
		return
	}
	to := from
	if ts := q.Get("to"); ts != "" {
		if to, err = time.Parse(time.DateOnly, ts); err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
			return
		}
	}

	key := domain.RateKey{PropertyID: id, RoomCategory: room, Plan: plan, Occupancy: occ}
	nights, err := h.Rates.ResolveRange(r.Context(), key, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]nightView, 0, len(nights))
	missing := 0
	for _, n := range nights {
		v := nightView{Date: n.Date.Format(time.DateOnly), Found: n.Found}
		if n.Found {
			v.PriceMinor = n.PriceMinor
			v.Tier = string(n.Tier)
		} else {
			missing++
		}
		views = append(views, v)
	}
	if missing > 0 {
		// NotFound nights are valid results; fallback pricing is the
		// display/booking layer's job. Flag the data gap for operators.
		log.Warn().Int64("property", id).Str("room", room).Str("plan", string(plan)).
			Str("occupancy", string(occ)).Int("nights", missing).
			Msg("no rate configured for requested nights")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"property_id": id,
		"room":        room,
		"plan":        plan,
		"occupancy":   occ,
		"nights":      views,
	})
}

type rateEntryRequest struct {
	ID           int64  `json:"id,omitempty"`
	RoomCategory string `json:"room_category"`
	Plan         string `json:"plan"`
	Occupancy    string `json:"occupancy"`
	Tier         string `json:"tier"`
	PriceMinor   int64  `json:"price_minor"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

func (h *Handlers) saveRate(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	var req rateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	e := domain.RateEntry{
		ID:           req.ID,
		PropertyID:   id,
		RoomCategory: req.RoomCategory,
		Plan:         domain.PlanType(req.Plan),
		Occupancy:    domain.OccupancyType(req.Occupancy),
		Tier:         domain.PricingTier(req.Tier),
		PriceMinor:   req.PriceMinor,
		IsActive:     true,
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
	if req.StartDate != "" {
		d, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "start_date must be YYYY-MM-DD")
			return
		}
		e.StartDate = &d
	}
	if req.EndDate != "" {
		d, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "end_date must be YYYY-MM-DD")
			return
		}
		e.EndDate = &d
	}

	rateID, err := h.Rates.SaveRateEntry(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": rateID})
}

func (h *Handlers) deactivateRate(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	rateID, err := strconv.ParseInt(chi.URLParam(r, "rateID"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "rate id must be a number")
		return
	}
	if err := h.Rates.DeactivateRateEntry(r.Context(), id, rateID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- channels ----

type channelView struct {
	Channel          string     `json:"channel"`
	Enabled          bool       `json:"enabled"`
	ConnectionStatus string     `json:"connection_status"`
	SyncStatus       string     `json:"sync_status"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	SyncErrorCount   int        `json:"sync_error_count"`
}

func (h *Handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	cfgs, err := h.Channels.ListChannels(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// credentials stay server-side
	views := make([]channelView, 0, len(cfgs))
	for _, c := range cfgs {
		views = append(views, channelView{
			Channel:          string(c.Channel),
			Enabled:          c.Enabled,
			ConnectionStatus: string(c.ConnectionStatus),
			SyncStatus:       string(c.SyncStatus),
			LastSyncAt:       c.LastSyncAt,
			SyncErrorCount:   c.SyncErrorCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": views})
}

func (h *Handlers) testChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	name, err := domain.ParseChannelName(chi.URLParam(r, "channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := h.Sync.TestChannel(r.Context(), id, name)
	if err != nil && status == "" {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"connection_status": string(status)})
}

// ---- sync ----

type syncRequest struct {
	Channel string `json:"channel"` // channel name or "all"
	Type    string `json:"type"`
}

func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	typ, err := domain.ParseSyncType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	actor := r.Header.Get("X-Triggered-By")
	if actor == "" {
		actor = "api"
	}

	if req.Channel == "all" {
		runs, err := h.Sync.SyncAll(r.Context(), id, typ, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		return
	}

	name, err := domain.ParseChannelName(req.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := h.Sync.SyncChannel(r.Context(), id, name, typ, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": []app.RunSummary{run}})
}

func (h *Handlers) cancelSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := propertyID(r); !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	if err := h.Sync.CancelRun(r.Context(), chi.URLParam(r, "syncID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- sync logs ----

type syncLogView struct {
	SyncID            string     `json:"sync_id"`
	Channel           string     `json:"channel"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	RecordsProcessed  int        `json:"records_processed"`
	SuccessfulRecords int        `json:"successful_records"`
	FailedRecords     int        `json:"failed_records"`
	Errors            []string   `json:"errors,omitempty"`
	Warnings          []string   `json:"warnings,omitempty"`
	TriggeredBy       string     `json:"triggered_by"`
	DurationMS        int64      `json:"duration_ms"`
}

func (h *Handlers) listSyncLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := propertyID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "property id must be a positive number")
		return
	}
	q := domain.SyncLogQuery{PropertyID: id, Limit: 50}
	p := r.URL.Query()
	if v := p.Get("channel"); v != "" {
		name, err := domain.ParseChannelName(v)
		if err != nil {
			writeError(w, err)
			return
		}
		q.Channel = &name
	}
	if v := p.Get("type"); v != "" {
		typ, err := domain.ParseSyncType(v)
		if err != nil {
			writeError(w, err)
			return
		}
		q.Type = &typ
	}
	if v := p.Get("status"); v != "" {
		st := domain.RunStatus(v)
		switch st {
		case domain.RunPending, domain.RunRunning, domain.RunCompleted, domain.RunFailed, domain.RunCancelled:
			q.Status = &st
		default:
			writeProblem(w, http.StatusBadRequest, "Bad Request", "unknown status filter")
			return
		}
	}
	if v := p.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		q.Limit = n
	}
	if v := p.Get("cursor"); v != "" {
		q.Cursor = &v
	}

	page, err := h.Logs.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]syncLogView, 0, len(page.Items))
	for _, l := range page.Items {
		views = append(views, syncLogView{
			SyncID:            l.SyncID,
			Channel:           string(l.Channel),
			Type:              string(l.Type),
			Status:            string(l.Status),
			StartTime:         l.StartTime,
			EndTime:           l.EndTime,
			RecordsProcessed:  l.RecordsProcessed,
			SuccessfulRecords: l.SuccessfulRecords,
			FailedRecords:     l.FailedRecords,
			Errors:            l.Errors,
			Warnings:          l.Warnings,
			TriggeredBy:       l.TriggeredBy,
			DurationMS:        l.DurationMS,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views, "next_cursor": page.NextCursor})
}
