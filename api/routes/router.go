package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bistrohq/bistro-backend/api/controllers"
	inventorycontrollers "github.com/bistrohq/bistro-backend/api/controllers/inventory"
	ordercontrollers "github.com/bistrohq/bistro-backend/api/controllers/orders"
	schedulingcontrollers "github.com/bistrohq/bistro-backend/api/controllers/scheduling"
	"github.com/bistrohq/bistro-backend/api/middleware"
	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/scheduling"
	"github.com/bistrohq/bistro-backend/internal/tables"
	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/metrics"
	"github.com/bistrohq/bistro-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface calls into. Nil services
// answer with an internal error; a nil IdempotencyStore disables replay.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	ReadinessChecks  map[string]controllers.Pinger
	IdempotencyStore redis.IdempotencyStore

	Tables     tables.Service
	Inventory  inventory.Service
	History    inventorycontrollers.HistoryReader
	Scheduling scheduling.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	httpMetrics := metrics.NewHTTPMetrics(registry)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.ReadinessChecks))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	idem := middleware.Idempotency(deps.IdempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", controllers.Ping())

		r.With(idem).Post("/tables/{tableId}/seat", ordercontrollers.Seat(deps.Tables, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(deps.Tables, logg))
			r.With(idem).Post("/lines", ordercontrollers.AddLine(deps.Tables, logg))
			r.With(idem).Post("/close", ordercontrollers.Close(deps.Tables, logg))
		})
		r.With(idem).Delete("/order-lines/{lineId}", ordercontrollers.RemoveLine(deps.Tables, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/reorder", inventorycontrollers.Reorder(deps.Inventory, logg))
			r.With(idem).Post("/{ingredientId}/adjustments", inventorycontrollers.Adjust(deps.Inventory, logg))
			r.Get("/{ingredientId}/balance", inventorycontrollers.Balance(deps.Inventory, logg))
			r.Get("/{ingredientId}/history", inventorycontrollers.History(deps.History, logg))
		})

		r.Route("/employees/{employeeId}", func(r chi.Router) {
			r.With(idem).Post("/shifts", schedulingcontrollers.AddShift(deps.Scheduling, logg))
			r.Get("/shifts", schedulingcontrollers.ListShifts(deps.Scheduling, logg))
			r.With(idem).Post("/time-off", schedulingcontrollers.RequestTimeOff(deps.Scheduling, logg))
		})
		r.With(idem).Post("/time-off/{timeOffId}/status", schedulingcontrollers.SetTimeOffStatus(deps.Scheduling, logg))
	})

	return r
}
