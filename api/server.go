/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logging:    zap request log with a request-scoped logger in the context
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/health            Liveness
  /api/employees/*       Employee management, balances, eligibility
  /api/leave-types/*     Leave types and their policies
  /api/entitlements/*    Balances, history, accrual, adjustments
  /api/requests/*        Request lifecycle
  /api/delegations/*     Approval delegation
  /api/holidays/*        Holiday calendar
  /api/blocked-periods/* Company-wide blocked ranges
  /api/jobs/*            Batch jobs and their run records
  /api/scenarios/*       Demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-engine/logging"
)

// DefaultAllowedOrigins are the local frontend dev servers.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. Empty
// allowedOrigins means DefaultAllowedOrigins.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Put("/{id}", h.UpdateEmployee)
			r.Get("/{id}/entitlements", h.ListEmployeeEntitlements)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Get("/{id}/eligibility/{leaveTypeID}", h.CheckEligibility)
		})

		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
			r.Get("/{id}", h.GetLeaveType)
			r.Put("/{id}", h.UpdateLeaveType)
		})

		r.Route("/entitlements", func(r chi.Router) {
			r.Post("/", h.EnsureEntitlement)
			r.Get("/{id}", h.GetEntitlement)
			r.Get("/{id}/history", h.GetHistory)
			r.Post("/{id}/accrue", h.Accrue)
			r.Get("/{id}/adjustments", h.ListAdjustments)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}", h.UpdateRequest)
			r.Post("/{id}/cancel", h.CancelRequest())
			r.Post("/{id}/approve", h.ApproveRequest())
			r.Post("/{id}/reject", h.RejectRequest())
			r.Post("/{id}/finalize", h.FinalizeRequest())
			r.Post("/{id}/override", h.OverrideRequest)
			r.Post("/{id}/flag", h.FlagRequest())
		})

		r.Route("/delegations", func(r chi.Router) {
			r.Get("/", h.ListDelegations)
			r.Post("/", h.CreateDelegation)
			r.Delete("/{id}", h.RevokeDelegation)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Get("/dates", h.ListHolidayDates)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/blocked-periods", func(r chi.Router) {
			r.Get("/", h.ListBlockedPeriods)
			r.Post("/", h.CreateBlockedPeriod)
			r.Delete("/{id}", h.DeleteBlockedPeriod)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/accrual", h.RunAccrual)
			r.Post("/carry-forward", h.RunCarryForward)
			r.Post("/reset", h.RunReset)
			r.Post("/reminders", h.RunReminders)
			r.Get("/runs", h.ListRuns)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: http.StatusText(http.StatusNotFound), Details: "no route for " + r.URL.Path})
	})

	return r
}
