/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:       Cross-origin requests for frontend
  2. RequestID:  Unique ID per request for tracing
  3. Logger:     httplog request logging (ECS schema, slog)
  4. CleanPath:  Collapses duplicate slashes
  5. Recoverer:  Panic recovery (500 instead of crash)
  6. Heartbeat:  GET /health for load balancers

ROUTE GROUPS:
  /api/companies/*      Company configuration
  /api/employees/*      Employee management and settlement
  /api/attendance       Attendance intake
  /api/runs/*           Payroll runs
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /                     Landing page

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
	// Logger receives one record per request. Nil disables request logging.
	Logger *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	if opts.Logger != nil {
		r.Use(httplog.RequestLogger(opts.Logger, &httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.SchemaECS,
		}))
	}
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Company configuration
		r.Route("/companies/{company}", func(r chi.Router) {
			r.Put("/config", h.PutCompanyConfig)
			r.Get("/templates", h.ListTemplates)
			r.Get("/statutory", h.ListStatutory)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Post("/{id}/settlement", h.Settle)
		})

		r.Post("/attendance", h.RecordAttendance)

		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.CreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRun)
				r.Post("/compute", h.ComputeRun)
				r.Post("/approve", h.ApproveRun)
				r.Post("/mark-created", h.MarkRunCreated)
				r.Get("/entries", h.ListEntries)
				r.Get("/faults", h.ListFaults)
				r.Put("/salary-values", h.SaveSalaryValue)
				r.Get("/employees/{employeeID}/preview", h.PreviewEmployee)
				r.Get("/employees/{employeeID}/payslip", h.GetPayslip)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(landingPage))
	})

	return r
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Payroll Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Payroll Engine API</h1>
<p>Load a demo company with <code>POST /api/scenarios/load {"scenario_id": "standard-month"}</code>,
then compute the returned run with <code>POST /api/runs/{id}/compute</code>.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
<li><a href="/api/runs">/api/runs</a> - List runs</li>
<li><a href="/health">/health</a> - Heartbeat</li>
</ul>
</body>
</html>`
