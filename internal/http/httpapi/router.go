package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"framelens/internal/http/handlers"
	"framelens/internal/infra"
	mw "framelens/internal/middleware"
)

// Options carries the router's ambient wiring.
type Options struct {
	Logger         infra.Logger
	Country        mw.CountryLookup
	AllowedOrigins []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.CORS(opts.AllowedOrigins),
		mw.Logger(opts.Logger, opts.Country),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/photos", func(r chi.Router) {
		r.With(mw.RateLimit(30, time.Minute)).Post("/", app.PhotoUpload)

		r.Route("/{fingerprint}", func(r chi.Router) {
			r.Get("/", app.PhotoDownload)
			r.Get("/analysis", app.PhotoAnalysis)
			// Enhancement runs are the expensive path: three generation
			// calls plus three structuring calls per request.
			r.With(mw.RateLimit(10, time.Minute)).Post("/enhancements", app.PhotoEnhance)
			r.With(mw.RateLimit(10, time.Minute)).Get("/enhancements/archive", app.PhotoEnhancementArchive)
		})
	})

	r.Get("/v1/analyses", app.RecentAnalyses)

	return r
}
