package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"github.com/gorilla/mux"
	"github.com/labstack/gommon/log"
)

const apiKeyHeader = "X-API-Key"

// API exposes the competition use cases over REST.
type API struct {
	service *app.Service
	apiKey  string
}

func NewAPI(service *app.Service, apiKey string) *API {
	return &API{service: service, apiKey: apiKey}
}

// NewRouter registers every public, timing and admin route.
func NewRouter(service *app.Service, apiKey string) *mux.Router {
	api := NewAPI(service, apiKey)
	ws := NewWSHandler(service)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/competitions", api.listCompetitions).Methods(http.MethodGet)
	r.HandleFunc("/api/competitions/active", api.activeCompetition).Methods(http.MethodGet)
	r.HandleFunc("/api/competitions/{id}/state", api.competitionState).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard", api.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/answers", api.submitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/api/progress", api.progress).Methods(http.MethodGet)
	r.HandleFunc("/ws/leaderboard", ws.ServeWS)

	r.Handle("/update", api.requireAPIKey(http.HandlerFunc(api.update))).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(api.requireAPIKey)
	admin.HandleFunc("/state", api.adminState).Methods(http.MethodGet)
	admin.HandleFunc("/select/{id}", api.selectCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/start/{id}", api.startCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/stop/{id}", api.stopCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/reset", api.reset).Methods(http.MethodPost)
	admin.HandleFunc("/reload", api.reload).Methods(http.MethodPost)
	return r
}

// requireAPIKey rejects requests whose X-API-Key does not match. An unset key locks
// the admin surface entirely.
func (a *API) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get(apiKeyHeader)
		if a.apiKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(a.apiKey)) != 1 {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type competitionView struct {
	domain.CompetitionRecord
	Summary *domain.Summary `json:"summary,omitempty"`
	Levels  []domain.Level  `json:"levels"`
}

func (a *API) listCompetitions(w http.ResponseWriter, r *http.Request) {
	list := a.service.Catalog().List()
	views := make([]competitionView, 0, len(list))
	for _, comp := range list {
		levels := make([]domain.Level, 0, len(comp.Levels))
		for _, n := range comp.LevelNumbers() {
			levels = append(levels, comp.Levels[n])
		}
		views = append(views, competitionView{
			CompetitionRecord: comp.Record(),
			Summary:           comp.Summary,
			Levels:            levels,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type activeResponse struct {
	CompetitionID string                  `json:"competitionId"`
	Name          string                  `json:"name,omitempty"`
	State         domain.CompetitionState `json:"state"`
}

func (a *API) activeCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok, err := a.service.ActiveCompetitionID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrCompetitionNotFound)
		return
	}
	state, err := a.service.CompetitionState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := activeResponse{CompetitionID: id, State: state}
	if comp, ok := a.service.Catalog().Competition(id); ok {
		resp.Name = comp.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) competitionState(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.CompetitionState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := a.service.Leaderboard(r.Context(), r.URL.Query().Get("competition_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

type answerRequest struct {
	User          string `json:"user"`
	CompetitionID string `json:"competition_id"`
	Level         int    `json:"level"`
	Answer        string `json:"answer"`
}

type answerResponse struct {
	Correct   bool `json:"correct"`
	NextLevel int  `json:"next_level"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !domain.ValidUser(req.User) {
		writeError(w, domain.Invalid("user", "must be alphanumeric"))
		return
	}
	correct, next, err := a.service.SubmitLevelAnswer(r.Context(), req.User, req.CompetitionID, req.Level, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Correct: correct, NextLevel: next})
}

type progressResponse struct {
	User          string `json:"user"`
	CompetitionID string `json:"competition_id,omitempty"`
	Levels        []int  `json:"levels"`
}

func (a *API) progress(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if !domain.ValidUser(user) {
		writeError(w, domain.Invalid("user", "must be alphanumeric"))
		return
	}
	competitionID := r.URL.Query().Get("competition_id")
	levels, err := a.service.Progress(r.Context(), user, competitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{User: user, CompetitionID: competitionID, Levels: levels})
}

type updateRequest struct {
	User          string `json:"user"`
	CompetitionID string `json:"competition_id"`
	Level         *int   `json:"level"`
	Ms            *int64 `json:"ms"`
}

type updateResponse struct {
	Success  bool   `json:"success"`
	Improved bool   `json:"improved"`
	Message  string `json:"message"`
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.User == "" || req.Level == nil || req.Ms == nil {
		writeError(w, domain.Invalid("body", "user, level and ms are required"))
		return
	}
	if !domain.ValidUser(req.User) {
		writeError(w, domain.Invalid("user", "must be alphanumeric"))
		return
	}
	improved, err := a.service.RecordTimedResult(r.Context(), req.User, req.CompetitionID, *req.Level, *req.Ms)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "no improvement"
	if improved {
		msg = "time improved"
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true, Improved: improved, Message: msg})
}

type adminStateResponse struct {
	ActiveCompetitionID string                     `json:"activeCompetitionId,omitempty"`
	States              []domain.CompetitionState  `json:"states"`
	Competitions        []domain.CompetitionRecord `json:"competitions"`
	Stats               *domain.Stats              `json:"stats,omitempty"`
}

func (a *API) adminState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	states, err := a.service.ListStates(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := adminStateResponse{States: states, Competitions: a.service.Catalog().Records()}
	if id, ok, err := a.service.ActiveCompetitionID(ctx); err != nil {
		writeError(w, err)
		return
	} else if ok {
		stats, err := a.service.Stats(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.ActiveCompetitionID = id
		resp.Stats = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

type stateChangeResponse struct {
	Success bool                    `json:"success"`
	State   domain.CompetitionState `json:"state"`
}

func (a *API) selectCompetition(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.SelectCompetition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateChangeResponse{Success: true, State: state})
}

type startRequest struct {
	StartTime int64 `json:"start_time"`
}

func (a *API) startCompetition(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	state, err := a.service.StartCompetition(r.Context(), mux.Vars(r)["id"], req.StartTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateChangeResponse{Success: true, State: state})
}

func (a *API) stopCompetition(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.StopCompetition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateChangeResponse{Success: true, State: state})
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	log.Warnf("all results, submissions and states were reset")
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "all results deleted"})
}

type reloadResponse struct {
	Success      bool                       `json:"success"`
	Competitions []domain.CompetitionRecord `json:"competitions"`
}

func (a *API) reload(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.service.ReloadCatalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Success: true, Competitions: catalog.Records()})
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeJSON returns io.EOF for an empty body and a ValidationError for malformed JSON.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return domain.Invalid("body", err.Error())
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps err to an HTTP status and a client-safe message; unexpected errors
// are logged and reported generically.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, io.EOF):
		return http.StatusBadRequest, "request body required"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrCompetitionNotFound), errors.Is(err, domain.ErrLevelNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrNotActive):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "invalid API key"
	default:
		log.Errorf("request failed: %v", err)
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode response: %v", err)
	}
}
