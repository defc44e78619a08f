package http

import (
	"database/sql"
	"net/http"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/mind-engage/leptonsf/internal/auth/middleware"
	"github.com/mind-engage/leptonsf/internal/rbac"
	"github.com/mind-engage/leptonsf/internal/storage"
	"github.com/mind-engage/leptonsf/internal/weights"
)

// Server holds what the routes need. DB and Gatherer may be nil.
type Server struct {
	Chain       *weights.Chain
	Auth        *auth.AuthService
	Blobs       storage.BlobStore
	DB          *sql.DB
	Gatherer    prometheus.Gatherer
	Logger      lager.Logger
	CORSOrigins []string
}

func NewRouter(s Server) chi.Router {
	if s.Logger == nil {
		s.Logger = lager.NewLogger("leptonsf-api")
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(s.Auth))

	r.Get("/producers", ListProducersHandler(s.Chain))
	r.Get("/producers/{name}/table", ProducerTableHandler(s.Chain))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(s.Auth))
		pr.With(rbac.Require(rbac.PermWeightsCompute)).
			Post("/weights", WeightsHandler(s.Chain, s.Logger))
		pr.Route("/calibrations", func(cr chi.Router) {
			MountCalibrations(cr, s.Blobs, s.DB, s.Logger)
		})
	})

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(s.Chain))
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func requestLogger(logger lager.Logger) func(http.Handler) http.Handler {
	logger = logger.Session("request")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("served", lager.Data{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request-id": middleware.GetReqID(r.Context()),
			})
		})
	}
}
