package api

import (
	"net/http"
	"time"
	"todo_service/internal/api/handler"
	"todo_service/internal/api/middleware"
	"todo_service/internal/app/service"
	"todo_service/internal/platform/observability"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Deps is everything the HTTP layer needs from the application.
type Deps struct {
	Accounts    *service.AccountService
	Admin       *service.AdminService
	Todos       *service.TodoService
	Verifier    middleware.TokenVerifier
	Resolve     middleware.PrincipalResolver
	Policy      *middleware.Policy
	AuthLimiter *middleware.RateLimiter // nil disables auth rate limiting
	// TrustedProxies lists the CIDRs allowed to set X-Real-IP and X-Forwarded-For.
	TrustedProxies []string
	Metrics        *observability.Metrics
	Log            *logrus.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(d.TrustedProxies, d.Log))
	r.Use(middleware.RequestLogger(d.Log, d.Metrics))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Identity first, then the route policy; handlers only ever see
	// requests the policy allowed.
	r.Use(middleware.Authenticate(d.Verifier, d.Resolve, d.Log))
	r.Use(d.Policy.Gate)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			if d.AuthLimiter != nil {
				auth.Use(d.AuthLimiter.Handler)
			}
			handler.NewAuthHandler(d.Accounts, d.Log).RegisterRoutes(auth)
		})
		api.Route("/users", handler.NewUserHandler(d.Accounts, d.Log).RegisterRoutes)
		api.Route("/admin", handler.NewAdminHandler(d.Admin, d.Log).RegisterRoutes)
		api.Route("/todos", handler.NewTodoHandler(d.Todos, d.Log).RegisterRoutes)
	})

	return r
}
