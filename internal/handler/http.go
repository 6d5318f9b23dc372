package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/membership"
	"github.com/KingofLakemoor/chainlink/internal/service"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Pinger is a dependency the readiness check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the squads API
type Handler struct {
	squads      *service.SquadService
	outcomes    *service.OutcomeService
	leaderboard *service.LeaderboardService
	auth        *Authenticator
	validate    *validator.Validate
	deps        map[string]Pinger
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler. deps are probed by the readiness check.
func NewHandler(
	squads *service.SquadService,
	outcomes *service.OutcomeService,
	leaderboard *service.LeaderboardService,
	auth *Authenticator,
	deps map[string]Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		squads:      squads,
		outcomes:    outcomes,
		leaderboard: leaderboard,
		auth:        auth,
		validate:    newValidator(),
		deps:        deps,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return membership.ValidSlug(strings.ToLower(fl.Field().String()))
	})
	return v
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/squads", func(r chi.Router) {
			r.Get("/", h.ListSquads)
			r.Get("/recent", h.GetRecentSquads)
			r.Get("/slug/{slug}", h.GetSquadBySlug)
			r.Get("/{squadID}", h.GetSquad)
			r.Get("/{squadID}/monthly", h.GetMonthlyHistory)

			r.Group(func(r chi.Router) {
				r.Use(h.auth.RequireUser)
				r.Post("/", h.CreateSquad)
				r.Put("/{squadID}", h.UpdateSquad)
				r.Delete("/{squadID}/image", h.DeleteSquadImage)
				r.Post("/{squadID}/join", h.JoinSquad)
				r.Post("/{squadID}/leave", h.LeaveSquad)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.auth.RequireUser)
			r.Get("/me/squad", h.GetMySquad)
		})

		// Outcomes come only from the pick resolution subsystem
		r.Group(func(r chi.Router) {
			r.Use(h.auth.RequireService)
			r.Post("/outcomes", h.SubmitOutcome)
			r.Post("/outcomes/batch", h.SubmitOutcomeBatch)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/stats", h.GetStats)
			r.Get("/squads/{squadID}", h.GetSquadPosition)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps err to a status by its kind. Unclassified errors are logged and
// reported as a generic internal error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		err = domain.ErrInternalError
	}
	writeJSON(w, status, APIResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrUnauthorized:
		if errors.Is(err, domain.ErrNotSquadOwner) || errors.Is(err, domain.ErrNotService) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.ErrInvalidInput:
		return http.StatusBadRequest
	case domain.ErrTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// readJSON reads a JSON body into v
func readJSON(r *http.Request, v interface{}) error {
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// decode reads a JSON body into the struct v and validates it
func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := readJSON(r, v); err != nil {
		return err
	}
	if err := h.validate.StructCtx(r.Context(), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Data: status, Error: "not ready"})
		return
	}
	h.writeSuccess(w, status)
}

func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
