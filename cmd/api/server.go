package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"escrowflow/access"
	"escrowflow/auth"
	"escrowflow/contract"
	"escrowflow/document"
	"escrowflow/escrow"
	"escrowflow/milestone"
	"escrowflow/party"
	"escrowflow/payment"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/validate"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, token string) (auth.User, error)
	ChangePassword(ctx context.Context, userID string, req auth.PasswordChangeRequest) error
}

type partyService interface {
	Get(ctx context.Context, caller access.Caller, id string) (party.Profile, error)
	ListActive(ctx context.Context) ([]party.Profile, error)
	Update(ctx context.Context, caller access.Caller, id string, req party.UpdateRequest) (party.Profile, error)
}

type contractService interface {
	Create(ctx context.Context, caller access.Caller, params contract.CreateParams) (contract.Contract, error)
	List(ctx context.Context, caller access.Caller) ([]contract.Contract, error)
	Get(ctx context.Context, caller access.Caller, id string) (contract.Contract, error)
	Update(ctx context.Context, caller access.Caller, id string, params contract.UpdateParams) (contract.Contract, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id, status string) (contract.Contract, error)
}

type milestoneService interface {
	Create(ctx context.Context, caller access.Caller, params milestone.CreateParams) (milestone.Milestone, error)
	List(ctx context.Context, caller access.Caller, contractID string) ([]milestone.Milestone, error)
	Get(ctx context.Context, caller access.Caller, id string) (milestone.Milestone, error)
	Update(ctx context.Context, caller access.Caller, id string, params milestone.UpdateParams) (milestone.Milestone, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id, status string) (milestone.Milestone, error)
	Complete(ctx context.Context, caller access.Caller, id, notes string) (milestone.Milestone, error)
}

type paymentService interface {
	Create(ctx context.Context, caller access.Caller, params payment.CreateParams) (payment.Payment, error)
	List(ctx context.Context, caller access.Caller, contractID string) ([]payment.Payment, error)
	Get(ctx context.Context, caller access.Caller, id string) (payment.Payment, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id, status string) (payment.Payment, error)
}

type escrowService interface {
	List(ctx context.Context, caller access.Caller, contractID string) ([]escrow.Account, error)
	Get(ctx context.Context, caller access.Caller, id string) (escrow.Account, error)
	Entries(ctx context.Context, caller access.Caller, id string) ([]escrow.Entry, error)
	Deposit(ctx context.Context, caller access.Caller, req escrow.MovementRequest) (escrow.Account, error)
	Release(ctx context.Context, caller access.Caller, req escrow.MovementRequest) (escrow.Account, error)
}

type documentService interface {
	Attach(ctx context.Context, caller access.Caller, parent document.Parent, parentID string, up document.Upload) (document.Document, error)
	List(ctx context.Context, caller access.Caller, parent document.Parent, parentID string) ([]document.Document, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the domain services.
type Server struct {
	authService      authService
	partyService     partyService
	contractService  contractService
	milestoneService milestoneService
	paymentService   paymentService
	escrowService    escrowService
	// documentService is nil when object storage is not configured.
	documentService documentService
	db              pinger
	limiter         *fixedWindowLimiter
	maxUploadBytes  int64
	trustProxy      bool
}

// Routes builds the chi router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestID)
	r.Use(recoverer)
	r.Use(accessLog)
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)
	r.Post("/signup", s.handleSignup)
	r.Post("/token", s.handleToken)
	r.Post("/token/refresh", s.handleTokenRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/logout", s.handleLogout)
		r.Get("/profile", s.handleProfile)
		r.Put("/profile", s.handleProfileUpdate)
		r.Post("/password/change", s.handlePasswordChange)
		r.Get("/users", s.handleUsers)
		r.Get("/users/{id}", s.handleUser)
		r.Put("/users/{id}", s.handleUserUpdate)

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", s.handleContracts)
			r.Post("/", s.handleContractCreate)
			r.Get("/{id}", s.handleContract)
			r.Patch("/{id}", s.handleContractUpdate)
			r.Patch("/{id}/update_status", s.handleContractStatus)
			r.Post("/{id}/upload_document", s.handleDocumentUpload(document.ParentContract))
			r.Get("/{id}/documents", s.handleDocuments(document.ParentContract))
		})

		r.Route("/milestones", func(r chi.Router) {
			r.Get("/", s.handleMilestones)
			r.Post("/", s.handleMilestoneCreate)
			r.Get("/{id}", s.handleMilestone)
			r.Patch("/{id}", s.handleMilestoneUpdate)
			r.Patch("/{id}/update_status", s.handleMilestoneStatus)
			r.Patch("/{id}/complete", s.handleMilestoneComplete)
			r.Post("/{id}/upload_document", s.handleDocumentUpload(document.ParentMilestone))
			r.Get("/{id}/documents", s.handleDocuments(document.ParentMilestone))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", s.handlePayments)
			r.Post("/", s.handlePaymentCreate)
			r.Get("/{id}", s.handlePayment)
			r.Patch("/{id}/update_status", s.handlePaymentStatus)
		})

		r.Route("/escrow", func(r chi.Router) {
			r.Get("/", s.handleEscrowAccounts)
			r.Get("/{id}", s.handleEscrowAccount)
			r.Get("/{id}/entries", s.handleEscrowEntries)
			r.Post("/{id}/deposit", s.handleEscrowDeposit)
			r.Post("/{id}/release", s.handleEscrowRelease)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method \""+r.Method+"\" not allowed.")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logger.Error(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
	return false
}

func callerFrom(r *http.Request) access.Caller {
	c, _ := access.FromContext(r.Context())
	return c
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if fields, ok := validate.As(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
		return
	}

	switch {
	case errors.Is(err, contract.ErrInvalidStatus),
		errors.Is(err, milestone.ErrInvalidStatus),
		errors.Is(err, payment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, escrow.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, escrow.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, escrow.ErrAmountTooLarge):
		writeError(w, http.StatusBadRequest, "Amount exceeds account limit")
	case errors.Is(err, milestone.ErrDuplicateOrder):
		writeError(w, http.StatusBadRequest, "The fields contract, order must make a unique set.")
	case errors.Is(err, milestone.ErrOrderOutOfRange):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": map[string]string{"order": "Ensure this value is less than or equal to 2147483647."}})
	case errors.Is(err, contract.ErrUnknownParty):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": map[string]string{"intended_parent": "Party does not exist."}})
	case errors.Is(err, auth.ErrDuplicateEmail), errors.Is(err, party.ErrDuplicateEmail):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": map[string]string{"email": "user with this email already exists."}})
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": map[string]string{"password": trimPrefix(err)}})
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusBadRequest, "Token is already blacklisted")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInactiveAccount):
		writeError(w, http.StatusUnauthorized, trimPrefix(err))
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
	case errors.Is(err, party.ErrForbidden):
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, contract.ErrNotFound),
		errors.Is(err, milestone.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, party.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "Not found.")
	default:
		logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// trimPrefix drops the "pkg: " prefix of a sentinel error for display.
func trimPrefix(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
