package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/em-ech/siftopsv1-sub000/internal/handlers"
	"github.com/em-ech/siftopsv1-sub000/internal/rag"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Searcher   handlers.Searcher
	Ingester   handlers.Ingester
	Directives storage.DirectiveStore
	Bundles    handlers.BundleManager
	RAGEngine  rag.Engine
	Coverage   handlers.CoverageReporter
	Cache      handlers.CacheStatser
	Health     http.Handler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Tracing)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	documents := handlers.NewDocumentHandler(deps.Ingester)
	directives := handlers.NewDirectiveHandler(deps.Directives)
	bundles := handlers.NewBundleHandler(deps.Bundles)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", deps.Health)

		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodGet, "/stats", handlers.NewStatsHandler(deps.Coverage, deps.Cache))
			r.Method(http.MethodPost, "/search", handlers.NewSearchHandler(deps.Searcher))

			r.Post("/documents", documents.Ingest)
			r.Delete("/documents/{externalID}", documents.Delete)

			r.Get("/directives", directives.List)
			r.Put("/directives", directives.Put)
			r.Delete("/directives/{id}", directives.Delete)

			r.Route("/bundles", func(r chi.Router) {
				r.Post("/", bundles.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", bundles.Get)
					r.Delete("/", bundles.Delete)
					r.Post("/items", bundles.AddItem)
					r.Delete("/items/{documentID}", bundles.RemoveItem)
					r.Post("/lock", bundles.Lock)
					r.Post("/clear", bundles.Clear)
					r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.RAGEngine))
				})
			})
		})
	})

	return r
}
