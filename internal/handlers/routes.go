package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidtube/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Videos        VideoStore
	Subscriptions SubscriptionStore
	Sessions      SessionManager
	Media         MediaStore
	Cleaner       MediaCleaner
	Prober        DurationProber
	RateLimiter   middleware.RateLimiter
	Uploads       Uploads
	ExposeStack   bool
	CORSOrigins   []string
	Logger        *slog.Logger
}

// NewRouter builds the HTTP handler serving the VidTube API.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rs := Responder{ExposeStack: deps.ExposeStack}
	authn := Authenticator{Sessions: deps.Sessions, Users: deps.Users, Responder: rs}

	health := HealthHandler{}
	sessions := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	users := UserHandler{Users: deps.Users, Media: deps.Media, Cleaner: deps.Cleaner, Uploads: deps.Uploads}
	videos := VideoHandler{
		Videos:  deps.Videos,
		Media:   deps.Media,
		Cleaner: deps.Cleaner,
		Prober:  deps.Prober,
		Uploads: deps.Uploads,
	}
	subscriptions := SubscriptionHandler{Subscriptions: deps.Subscriptions}

	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(deps.RateLimiter, scope, rs.Handle(func(http.ResponseWriter, *http.Request) error {
			return TooManyRequests("Too many requests, please try again later")
		}))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(deps.CORSOrigins))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", rs.Handle(health.Handle))

		r.Route("/users", func(r chi.Router) {
			r.With(limited("register")).Post("/register", rs.Handle(users.Register))
			r.With(limited("login")).Post("/login", rs.Handle(sessions.Login))
			r.With(limited("refresh")).Post("/refresh-token", rs.Handle(sessions.Refresh))

			r.Group(func(r chi.Router) {
				r.Use(authn.Require)
				r.Post("/logout", rs.Handle(sessions.Logout))
				r.Post("/change-password", rs.Handle(sessions.ChangePassword))
				r.Get("/current-user", rs.Handle(users.CurrentUser))
				r.Patch("/update-account", rs.Handle(users.UpdateAccount))
				r.Patch("/avatar", rs.Handle(users.UpdateAvatar))
				r.Patch("/cover-image", rs.Handle(users.UpdateCoverImage))
				r.Get("/c/{username}", rs.Handle(users.ChannelProfile))
				r.Get("/history", rs.Handle(users.WatchHistory))
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Use(authn.Require)
			r.Get("/", rs.Handle(videos.List))
			r.Post("/", rs.Handle(videos.Upload))
			r.Get("/{videoId}", rs.Handle(videos.GetByID))
			r.Patch("/{videoId}", rs.Handle(videos.Update))
			r.Delete("/{videoId}", rs.Handle(videos.Delete))
			r.Post("/{videoId}/publish", rs.Handle(videos.Publish))
			r.Patch("/toggle/publish/{videoId}", rs.Handle(videos.TogglePublish))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(authn.Require)
			r.Post("/c/{channelId}", rs.Handle(subscriptions.Toggle))
		})
	})

	r.NotFound(rs.Handle(func(http.ResponseWriter, *http.Request) error {
		return NotFound("Route not found")
	}))
	r.MethodNotAllowed(rs.Handle(func(http.ResponseWriter, *http.Request) error {
		return newAPIError(http.StatusMethodNotAllowed, "Method not allowed")
	}))

	return r
}
