// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/persistence"
)

type ctxKey int

const (
	ctxKeyUsername ctxKey = iota
	ctxKeyRole
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}

// setupRouter builds the chi mux for the whole /api/v1 surface plus the
// WebSocket upgrade endpoint.
func (m *Manager) setupRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", m.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/login", m.handleLogin)

		api.Group(func(auth chi.Router) {
			auth.Use(m.requireAuth)

			auth.Get("/auth/me", m.handleMe)
			auth.Post("/auth/refresh", m.handleRefresh)

			auth.With(m.requirePermission("tags:read")).Get("/tags", m.handleListTags)
			auth.With(m.requirePermission("tags:read")).Get("/tags/{name}", m.handleReadTag)
			auth.With(m.requirePermission("tags:write")).Post("/tags/{name}", m.handleWriteTag)

			auth.With(m.requirePermission("services:read")).Get("/services", m.handleListServices)
			auth.With(m.requirePermission("services:read")).Get("/services/{name}", m.handleGetService)
			auth.With(m.requirePermission("services:command")).Post("/services/{name}/command", m.handleServiceCommand)

			auth.With(m.requirePermission("alarms:read")).Get("/alarms", m.handleListAlarms)
			auth.With(m.requirePermission("alarms:read")).Get("/alarms/{id}", m.handleGetAlarm)
			auth.With(m.requirePermission("alarms:ack")).Post("/alarms/{id}/acknowledge", m.handleAckAlarm)
			auth.With(m.requirePermission("alarms:clear")).Post("/alarms/{id}/clear", m.handleClearAlarm)
			auth.With(m.requirePermission("alarms:shelve")).Post("/alarms/{id}/shelve", m.handleShelveAlarm)

			auth.With(m.requirePermission("history:read")).Get("/history/tags", m.handleTagHistory)
			auth.With(m.requirePermission("history:read")).Get("/history/tags/multi", m.handleMultiTagHistory)
			auth.With(m.requirePermission("history:read")).Get("/history/tags/available", m.handleAvailableHistoryTags)

			auth.With(m.requirePermission("config:read")).Get("/config", m.handleGetConfig)

			auth.Get("/ws", m.handleWebSocket)
		})
	})

	return r
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (m *Manager) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, rl, err := m.auth.login(req.Username, req.Password)
	if err != nil {
		m.audit.RecordEvent(r.Context(), "security", "login failed for "+req.Username)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	m.audit.RecordEvent(r.Context(), "security", "login succeeded for "+req.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: string(rl)})
}

func (m *Manager) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"username": r.Context().Value(ctxKeyUsername).(string),
		"role":     string(r.Context().Value(ctxKeyRole).(role)),
	})
}

func (m *Manager) handleRefresh(w http.ResponseWriter, r *http.Request) {
	username := r.Context().Value(ctxKeyUsername).(string)
	token, err := m.auth.refresh(username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: string(r.Context().Value(ctxKeyRole).(role))})
}

// configResponse exposes the Web UI's own non-secret runtime configuration
// to engineer/admin roles; it never includes the JWT signing key or any
// user's password hash.
type configResponse struct {
	Name                string   `json:"name"`
	ListenAddr          string   `json:"listen_addr"`
	JWTExpiryMinutes    float64  `json:"jwt_expiry_minutes"`
	MinUpdateIntervalMS int64    `json:"min_update_interval_ms"`
	Services            []string `json:"services"`
}

func (m *Manager) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Name:                m.name,
		ListenAddr:          m.listenAddr,
		JWTExpiryMinutes:    m.jwtExpiry.Minutes(),
		MinUpdateIntervalMS: m.minUpdateInterval.Milliseconds(),
		Services:            m.services.Names(),
	})
}

// requireAuth parses the bearer token and stashes username/role in the
// request context; it rejects the request before any handler runs if the
// token is missing, malformed, or expired.
func (m *Manager) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, ErrInvalidCredentials)
			return
		}
		c, err := m.auth.verify(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUsername, c.Username)
		ctx = context.WithValue(ctx, ctxKeyRole, c.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission rejects the request unless the authenticated user's
// role carries p in its fixed permission table.
func (m *Manager) requirePermission(p permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl, _ := r.Context().Value(ctxKeyRole).(role)
			if !rl.allows(p) {
				writeError(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- tags ---

type tagResponse struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
	Writable  bool      `json:"writable"`
}

func (m *Manager) handleListTags(w http.ResponseWriter, r *http.Request) {
	names := m.tags.Tags()
	out := make([]tagResponse, 0, len(names))
	for _, n := range names {
		st, ok := m.tags.State(n)
		if !ok {
			continue
		}
		out = append(out, tagToResponse(n, st))
	}
	writeJSON(w, http.StatusOK, out)
}

func tagToResponse(name string, st *tagmodel.State) tagResponse {
	cur := st.Current()
	return tagResponse{
		Name: name, Value: cur.Value, Quality: cur.Quality.String(),
		Timestamp: cur.Timestamp, Writable: st.Tag().Writable,
	}
}

func (m *Manager) handleReadTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := m.tags.State(name)
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownTag)
		return
	}
	cur := st.Current()
	writeJSON(w, http.StatusOK, tagResponse{
		Name: name, Value: cur.Value, Quality: cur.Quality.String(),
		Timestamp: cur.Timestamp, Writable: st.Tag().Writable,
	})
}

type writeTagRequest struct {
	Value any `json:"value"`
}

func (m *Manager) handleWriteTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req writeTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := m.tags.WriteTag(r.Context(), name, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": ok})
}

// --- services ---

type serviceResponse struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	CurrentProcedure int    `json:"current_procedure"`
}

func (m *Manager) handleListServices(w http.ResponseWriter, r *http.Request) {
	names := m.services.Names()
	out := make([]serviceResponse, 0, len(names))
	for _, n := range names {
		sr, err := m.serviceToResponse(n)
		if err != nil {
			continue
		}
		out = append(out, sr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *Manager) serviceToResponse(name string) (serviceResponse, error) {
	st, err := m.svc.State(name)
	if err != nil {
		return serviceResponse{}, err
	}
	proc, _ := m.svc.CurrentProcedure(name)
	return serviceResponse{Name: name, State: st.String(), CurrentProcedure: proc}, nil
}

func (m *Manager) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sr, err := m.serviceToResponse(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

type serviceCommandRequest struct {
	Command     string `json:"command"`
	ProcedureID *int   `json:"procedure_id"`
}

func (m *Manager) handleServiceCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req serviceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmd, err := parseCommandName(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := m.svc.SendCommand(r.Context(), name, cmd, req.ProcedureID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	username, _ := r.Context().Value(ctxKeyUsername).(string)
	m.audit.RecordEvent(r.Context(), "command", username+" sent "+cmd.String()+" to "+name)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": result.Success,
		"from":    result.From.String(),
		"to":      result.To.String(),
	})
}

var commandByName = map[string]packml.Command{
	"RESET": packml.CommandReset, "START": packml.CommandStart, "STOP": packml.CommandStop,
	"HOLD": packml.CommandHold, "UNHOLD": packml.CommandUnhold, "SUSPEND": packml.CommandSuspend,
	"UNSUSPEND": packml.CommandUnsuspend, "ABORT": packml.CommandAbort, "CLEAR": packml.CommandClear,
	"COMPLETE": packml.CommandComplete,
}

func parseCommandName(name string) (packml.Command, error) {
	cmd, ok := commandByName[name]
	if !ok {
		return 0, ErrUnknownCommand
	}
	return cmd, nil
}

// --- alarms ---

type alarmResponse struct {
	ID             uint64    `json:"id"`
	AlarmID        string    `json:"alarm_id"`
	Source         string    `json:"source"`
	Priority       int       `json:"priority"`
	State          string    `json:"state"`
	Message        string    `json:"message"`
	Value          float64   `json:"value"`
	RaisedAt       time.Time `json:"raised_at"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	ClearedAt      time.Time `json:"cleared_at,omitempty"`
	ShelvedUntil   time.Time `json:"shelved_until,omitempty"`
}

func alarmToResponse(a alarmpkg.Alarm) alarmResponse {
	return alarmResponse{
		ID: a.ID, AlarmID: a.AlarmID, Source: a.Source, Priority: int(a.Priority),
		State: string(a.State), Message: a.Message, Value: a.Value,
		RaisedAt: a.RaisedAt, AcknowledgedAt: a.AcknowledgedAt, AcknowledgedBy: a.AcknowledgedBy,
		ClearedAt: a.ClearedAt, ShelvedUntil: a.ShelvedUntil,
	}
}

func (m *Manager) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	states := map[alarmpkg.State]bool{}
	if s := r.URL.Query().Get("state"); s != "" {
		states[alarmpkg.State(s)] = true
	}
	alarms, err := m.alarms.ListAlarms(r.Context(), states, time.Time{}, time.Time{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]alarmResponse, 0, len(alarms))
	for _, a := range alarms {
		out = append(out, alarmToResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseAlarmID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func (m *Manager) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := parseAlarmID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := m.alarms.GetAlarm(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, alarmToResponse(a))
}

type ackAlarmRequest struct {
	By string `json:"by"`
}

func (m *Manager) handleAckAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := parseAlarmID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req ackAlarmRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.By == "" {
		req.By, _ = r.Context().Value(ctxKeyUsername).(string)
	}

	a, err := m.alarms.GetAlarm(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err := a.Acknowledge(req.By); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	saved, err := m.alarms.UpsertAlarm(r.Context(), a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	m.broadcaster.broadcastAlarm(saved)
	writeJSON(w, http.StatusOK, alarmToResponse(saved))
}

func (m *Manager) handleClearAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := parseAlarmID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := m.alarms.GetAlarm(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err := a.Clear(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	saved, err := m.alarms.UpsertAlarm(r.Context(), a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	m.broadcaster.broadcastAlarm(saved)
	writeJSON(w, http.StatusOK, alarmToResponse(saved))
}

type shelveAlarmRequest struct {
	UntilMinutes int `json:"until_minutes"`
}

func (m *Manager) handleShelveAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := parseAlarmID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req shelveAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := m.alarms.GetAlarm(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	until := time.Now().UTC().Add(time.Duration(req.UntilMinutes) * time.Minute)
	if err := a.Shelve(until); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	saved, err := m.alarms.UpsertAlarm(r.Context(), a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	m.broadcaster.broadcastAlarm(saved)
	writeJSON(w, http.StatusOK, alarmToResponse(saved))
}

// --- history ---

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	end = time.Now().UTC()
	start = end.Add(-time.Hour)
	if v := q.Get("start"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return
		}
	}
	if v := q.Get("end"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return
		}
	}
	return
}

func (m *Manager) handleAvailableHistoryTags(w http.ResponseWriter, r *http.Request) {
	tags, err := m.history.AvailableHistoryTags(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (m *Manager) handleTagHistory(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, ErrMissingTagParam)
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if bucket := r.URL.Query().Get("bucket"); bucket != "" {
		d, err := time.ParseDuration(bucket)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		agg := persistence.Aggregate(r.URL.Query().Get("agg"))
		if agg == "" {
			agg = persistence.AggregateAvg
		}
		buckets, err := m.history.QueryHistoryBucketed(r.Context(), tag, start, end, d, agg)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, buckets)
		return
	}

	records, err := m.history.QueryHistory(r.Context(), tag, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// maxMultiHistoryTags caps a single /history/tags/multi request, matching
// the "comma-separated tag names (max 10)" contract.
const maxMultiHistoryTags = 10

func (m *Manager) handleMultiTagHistory(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		writeError(w, http.StatusBadRequest, ErrMissingTagParam)
		return
	}
	tags := strings.Split(raw, ",")
	if len(tags) > maxMultiHistoryTags {
		writeError(w, http.StatusBadRequest, ErrTooManyTags)
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out := make(map[string][]persistence.HistoryRecord, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		records, err := m.history.QueryHistory(r.Context(), tag, start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out[tag] = records
	}
	writeJSON(w, http.StatusOK, out)
}

// --- websocket ---

func (m *Manager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(ctxKeyUsername).(string)
	rl, _ := r.Context().Value(ctxKeyRole).(role)
	m.serveWS(w, r, username, rl)
}
