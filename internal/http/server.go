package httpapi

import (
	"net/http"

	"neuronudge-backend-go/internal/config"
	"neuronudge-backend-go/internal/generator"
	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/services"
	"neuronudge-backend-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	Config      config.Config
	Store       store.Store
	Tokens      services.TokenService
	Hub         *services.StatsHub
	Log         *logging.Logger
	Users       *services.UserService
	Events      *services.EventService
	Nudges      *services.NudgeService
	Reflections *services.ReflectionService
	Stats       *services.StatsService
	DiskPath    string
}

type Deps struct {
	Store     store.Store
	Hub       *services.StatsHub
	Generator generator.Generator
	Log       *logging.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	tokens := services.TokenService{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		Config: cfg,
		Store:  deps.Store,
		Tokens: tokens,
		Hub:    deps.Hub,
		Log:    log,
		Users:  &services.UserService{Store: deps.Store, Tokens: tokens, Log: log},
		Events: &services.EventService{Store: deps.Store, Hub: deps.Hub, Log: log},
		Nudges: &services.NudgeService{
			Store:             deps.Store,
			Generator:         deps.Generator,
			Hub:               deps.Hub,
			Log:               log,
			GenerationTimeout: cfg.NudgeGenerationTimeout,
			FallbackText:      cfg.FallbackNudgeText,
		},
		Reflections: &services.ReflectionService{
			Store:             deps.Store,
			Generator:         deps.Generator,
			Log:               log,
			GenerationTimeout: cfg.NudgeGenerationTimeout,
			PerReflection:     cfg.NudgesPerReflection,
		},
		Stats:    &services.StatsService{Store: deps.Store},
		DiskPath: cfg.LogDir,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.Log))
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.Health)

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/signup", s.Signup)
		auth.Post("/login", s.Login)
		auth.Post("/refresh", s.Refresh)
		auth.With(WithAuth(s.Tokens)).Get("/me", s.Me)
	})

	r.Group(func(authed chi.Router) {
		authed.Use(WithAuth(s.Tokens))

		authed.Route("/me", func(me chi.Router) {
			me.Get("/", s.Me)
			me.Put("/profile", s.UpdateProfile)
			me.Delete("/", s.DeleteAccount)
		})

		authed.Route("/events", func(ev chi.Router) {
			ev.Get("/", s.ListEvents)
			ev.Post("/log", s.LogEvent)
			ev.Post("/nudge_shown", s.LogNudgeShown)
			ev.Post("/focus_resumed", s.LogFocusResumed)
		})

		authed.Get("/stats/me", s.MyStats)
		authed.Post("/eft/submit", s.SubmitReflection)

		authed.Route("/nudges", func(nudges chi.Router) {
			nudges.Get("/", s.ListNudges)
			nudges.Post("/", s.CreateNudge)
			nudges.Get("/next/{userId}", s.NextNudge)
			nudges.Put("/{nudgeId}", s.EditNudge)
			nudges.Delete("/{nudgeId}", s.DeleteNudge)
		})
	})

	r.Get("/ws/stats", s.StatsSocket)
	return r
}
