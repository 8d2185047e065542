package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-pos/meridian-pos/internal/auth"
	"github.com/meridian-pos/meridian-pos/internal/catalog/categories"
	"github.com/meridian-pos/meridian-pos/internal/catalog/products"
	"github.com/meridian-pos/meridian-pos/internal/catalog/warehouses"
	"github.com/meridian-pos/meridian-pos/internal/expenses"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/observability"
	"github.com/meridian-pos/meridian-pos/internal/purchases"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/reports"
	"github.com/meridian-pos/meridian-pos/internal/sales"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/stockaudit"
	"github.com/meridian-pos/meridian-pos/internal/users"
	"github.com/meridian-pos/meridian-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	LedgerHandler     *ledger.Handler
	AuditHandler      *stockaudit.Handler
	PurchasesHandler  *purchases.Handler
	SalesHandler      *sales.Handler
	ExpensesHandler   *expenses.Handler
	ProductsHandler   *products.Handler
	WarehousesHandler *warehouses.Handler
	CategoriesHandler *categories.Handler
	ReportsHandler    *reports.Handler
	RolesHandler      *rbac.Handler
	UsersHandler      *users.Handler
	JobsHandler       *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.LedgerHandler != nil {
		r.Route("/stock", params.LedgerHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audits", params.AuditHandler.MountRoutes)
	}
	if params.PurchasesHandler != nil {
		r.Route("/purchases", params.PurchasesHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.ExpensesHandler != nil {
		r.Route("/expenses", params.ExpensesHandler.MountRoutes)
	}
	if params.ProductsHandler != nil {
		r.Route("/products", params.ProductsHandler.MountRoutes)
	}
	if params.WarehousesHandler != nil {
		r.Route("/warehouses", params.WarehousesHandler.MountRoutes)
	}
	if params.CategoriesHandler != nil {
		r.Route("/categories", params.CategoriesHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
