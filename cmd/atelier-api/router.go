// Package main provides the Atelier API server.
package main

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atelier-ai/atelier/cmd/atelier-api/handlers"
	"github.com/atelier-ai/atelier/cmd/atelier-api/middleware"
	"github.com/atelier-ai/atelier/internal/api/rpc"
	"github.com/atelier-ai/atelier/internal/api/ws"
	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/config"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/render"
	"github.com/atelier-ai/atelier/internal/studio"
)

// AppDeps carries the wired services the router mounts.
type AppDeps struct {
	Logger *observability.Logger
	Config *config.Config
	DB     *sql.DB
	Studio *studio.Service
	Editor *canvas.Editor
	Hub    *ws.Hub
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(d AppDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.Timeout(d.Config.Server.WriteTimeout))

	// Health checks (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"atelier"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := d.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	renderOpts := render.Options{Scale: d.Config.Render.Scale}

	sessionHandler := handlers.NewSessionHandler(d.Logger, d.Studio, d.Editor)
	documentHandler := handlers.NewDocumentHandler(d.Logger, d.Studio)
	chatHandler := handlers.NewChatHandler(d.Logger, d.Studio)
	artifactHandler := handlers.NewArtifactHandler(d.Logger, d.Studio, renderOpts)
	canvasHandler := handlers.NewCanvasHandler(d.Logger, d.Studio, d.Editor, d.Hub, renderOpts)
	canvasService := rpc.NewCanvasService(d.Editor, d.Logger)

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled: d.Config.Auth.Enabled,
		APIKeys: d.Config.Auth.APIKeys,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/analyze", sessionHandler.Analyze)
				r.Post("/studio/enter", sessionHandler.EnterStudio)
				r.Post("/studio/exit", sessionHandler.ExitStudio)

				r.Post("/documents", documentHandler.Upload)
				r.Get("/pages", documentHandler.ListPages)
				r.Delete("/pages/{pageID}", documentHandler.DeletePage)

				r.Post("/chat", chatHandler.Chat)
				r.Get("/transcript", chatHandler.Transcript)
				r.Post("/extract/text", chatHandler.ExtractText)

				r.Get("/blueprint", artifactHandler.Blueprint)
				r.Get("/blueprint/render", artifactHandler.RenderBlueprint)
				r.Post("/workflow", artifactHandler.BuildWorkflow)
				r.Get("/workflow", artifactHandler.Workflow)
				r.Get("/workflow/render", artifactHandler.RenderWorkflow)

				r.Get("/canvas", canvasHandler.Canvas)
				r.Get("/canvas/render", canvasHandler.RenderCanvas)
				r.Get("/canvas/background", canvasHandler.Background)
				r.Post("/canvas/background", canvasHandler.GenerateBackground)
				r.Put("/canvas/background", canvasHandler.RefineBackground)

				r.Get("/events", canvasHandler.Events)
			})
		})

		r.Get("/pages/{pageID}/image", documentHandler.PageImage)
	})

	// Connect procedures for low-latency canvas gestures.
	for path, handler := range canvasService.Handlers() {
		r.With(auth).Handle(path, handler)
	}

	return r
}
