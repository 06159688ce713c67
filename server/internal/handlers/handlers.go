package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/fhelabs/fhegas/internal/costs"
	"github.com/fhelabs/fhegas/internal/engine"
	"github.com/fhelabs/fhegas/internal/events"
	"github.com/fhelabs/fhegas/internal/fhe"
	"github.com/fhelabs/fhegas/internal/model"
	"github.com/fhelabs/fhegas/server/internal/auth"
	"github.com/fhelabs/fhegas/server/internal/database"
)

// Handler holds dependencies for HTTP handlers. Each user gets an isolated
// engine whose registry layers the server-wide base table and the user's
// persisted cost overrides on top of the embedded defaults.
type Handler struct {
	db         *database.DB
	sessionMgr *scs.SessionManager
	recorder   *EventRecorder
	baseTable  []model.OperationCost

	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// New creates a new Handler. baseTable may be nil.
func New(db *database.DB, sessionMgr *scs.SessionManager, recorder *EventRecorder, baseTable []model.OperationCost) *Handler {
	return &Handler{
		db:         db,
		sessionMgr: sessionMgr,
		recorder:   recorder,
		baseTable:  baseTable,
		engines:    make(map[string]*engine.Engine),
	}
}

// emitterFor builds a user's notification fan-out: engine events go to the
// server log and to the debounced event recorder.
func (h *Handler) emitterFor(userID string) events.Emitter {
	return events.Multi{events.Log{}, h.recorder.ForUser(userID)}
}

// engineFor returns the cached engine for a user, building it from the
// persisted overrides on first use.
func (h *Handler) engineFor(userID string) (*engine.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if eng, ok := h.engines[userID]; ok {
		return eng, nil
	}

	emitter := h.emitterFor(userID)
	registry := costs.NewRegistry(events.Nop{})
	if err := registry.Apply(h.baseTable); err != nil {
		return nil, err
	}
	overrides, err := h.db.ListCostOverrides(userID)
	if err != nil {
		return nil, err
	}
	if err := registry.Apply(overrides); err != nil {
		return nil, err
	}

	// Notifications start only after replay: seeding from persisted state
	// must not re-emit cost-updated events.
	registry.SetEmitter(emitter)
	eng := engine.New(registry, emitter)
	h.engines[userID] = eng
	return eng, nil
}

// credentialsRequest is the register/login body
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// accountResponse is returned by register, login and key rotation
type accountResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Register creates an account and returns its API key
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(req.Username)
	if len(username) < 3 {
		h.jsonError(w, "username must be at least 3 characters", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		h.jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	existing, _ := h.db.GetUserByUsername(username)
	if existing != nil {
		h.jsonError(w, "username already taken", http.StatusConflict)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}
	userID, err := auth.GenerateID()
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}

	user := &database.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		APIKey:       apiKey,
		CreatedAt:    time.Now(),
	}
	if err := h.db.CreateUser(user); err != nil {
		h.jsonError(w, "failed to create account", http.StatusInternalServerError)
		return
	}

	h.sessionMgr.Put(r.Context(), "userID", user.ID)
	h.writeJSON(w, http.StatusCreated, accountResponse{
		UserID:   user.ID,
		Username: user.Username,
		APIKey:   user.APIKey,
	})
}

// Login starts a session for an existing account
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByUsername(strings.TrimSpace(req.Username))
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.jsonError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	h.sessionMgr.Put(r.Context(), "userID", user.ID)
	h.writeJSON(w, http.StatusOK, accountResponse{
		UserID:   user.ID,
		Username: user.Username,
		APIKey:   user.APIKey,
	})
}

// Logout destroys the session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionMgr.Destroy(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// RotateAPIKey replaces the account's API key
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}
	if err := h.db.UpdateUserAPIKey(user.ID, apiKey); err != nil {
		h.jsonError(w, "failed to rotate key", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, accountResponse{
		UserID:   user.ID,
		Username: user.Username,
		APIKey:   apiKey,
	})
}

// CostRequest is the set-cost body
type CostRequest struct {
	Name        string `json:"name"`
	BaseCost    int64  `json:"base_cost"`
	PerByteCost int64  `json:"per_byte_cost"`
}

// Costs serves the cost table: GET returns the snapshot (or one entry with
// ?name=), POST replaces an entry and persists it as a user override.
func (h *Handler) Costs(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	eng, err := h.engineFor(user.ID)
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if name := r.URL.Query().Get("name"); name != "" {
			cost, err := eng.Registry().GetCost(name)
			if err != nil {
				h.engineError(w, err)
				return
			}
			h.writeJSON(w, http.StatusOK, cost)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"operations": eng.Registry().Snapshot(),
		})

	case http.MethodPost:
		var req CostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := eng.Registry().SetCost(req.Name, req.BaseCost, req.PerByteCost); err != nil {
			h.engineError(w, err)
			return
		}
		cost := model.OperationCost{
			Name:        req.Name,
			BaseCost:    uint64(req.BaseCost),
			PerByteCost: uint64(req.PerByteCost),
		}
		if err := h.db.UpsertCostOverride(user.ID, cost); err != nil {
			h.jsonError(w, "failed to persist override", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, cost)

	default:
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// EstimateRequest is the single-operation estimate body
type EstimateRequest struct {
	Operation string `json:"operation"`
	DataSize  int64  `json:"data_size"`
}

// Estimate handles single-operation gas estimates
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	eng, err := h.engineFor(user.ID)
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}

	gas, err := eng.EstimateOperation(req.Operation, req.DataSize)
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]uint64{"gas": gas})
}

// Analyze aggregates one usage report, persists the result and returns it.
// The analysis row and the subject-log append commit together; a failed
// batch writes nothing.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var report model.UsageReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if report.SubjectID == "" {
		h.jsonError(w, "subject_id is required", http.StatusBadRequest)
		return
	}

	eng, err := h.engineFor(user.ID)
	if err != nil {
		h.jsonError(w, "an error occurred", http.StatusInternalServerError)
		return
	}

	analysis, err := eng.Analyze(report)
	if err != nil {
		// An unknown operation here rejects the whole batch; that is an
		// unprocessable report, not a missing resource.
		if errors.Is(err, fhe.ErrUnknownOperation) {
			h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.engineError(w, err)
		return
	}

	if err := h.db.SaveAnalysis(user.ID, report.SubjectID, analysis); err != nil {
		h.jsonError(w, "failed to store analysis", http.StatusInternalServerError)
		return
	}

	// Database write succeeded; mirror it into the engine's store, which
	// emits the subject-analyzed notification.
	eng.Store().Record(report.SubjectID, analysis)
	h.writeJSON(w, http.StatusOK, analysis)
}

// Analysis returns the latest stored analysis for a subject. Unanalyzed
// subjects return an empty analysis, not an error.
func (h *Handler) Analysis(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		h.jsonError(w, "subject_id is required", http.StatusBadRequest)
		return
	}

	analysis, _, err := h.db.GetAnalysis(user.ID, subjectID)
	if err != nil {
		h.jsonError(w, "failed to load analysis", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, analysis)
}

// SubjectsResponse is the subject log payload
type SubjectsResponse struct {
	Subjects []string `json:"subjects"`
	Count    int64    `json:"count"`
}

// Subjects returns the full analyzed-subject log, duplicates included
func (h *Handler) Subjects(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	subjects, err := h.db.ListSubjects(user.ID)
	if err != nil {
		h.jsonError(w, "failed to list subjects", http.StatusInternalServerError)
		return
	}
	count, err := h.db.AnalysisCount(user.ID)
	if err != nil {
		h.jsonError(w, "failed to list subjects", http.StatusInternalServerError)
		return
	}

	if subjects == nil {
		subjects = []string{}
	}
	h.writeJSON(w, http.StatusOK, SubjectsResponse{Subjects: subjects, Count: count})
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// engineError maps the engine's error taxonomy to HTTP statuses for lookup
// and estimate paths. Analyze overrides the unknown-operation case itself.
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fhe.ErrInvalidParameter),
		errors.Is(err, fhe.ErrMismatchedInputLength):
		status = http.StatusBadRequest
	case errors.Is(err, fhe.ErrUnknownOperation):
		status = http.StatusNotFound
	case errors.Is(err, fhe.ErrArithmeticOverflow):
		status = http.StatusUnprocessableEntity
	}
	h.jsonError(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
