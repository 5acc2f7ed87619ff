package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scholarsieve/review-cli/internal/funnel"
	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the corpus and funnel over HTTP",
	Long: `Starts a read-only JSON API over the stored corpus:

  GET /health            liveness check
  GET /api/stats         the current selection funnel
  GET /api/papers        papers, filterable by stage/canonical/min_score
  GET /api/papers/{id}   one paper`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, cfg.Server.RateLimit),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API route tree.
func newRouter(st store.Store, rateLimit float64) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	if rateLimit > 0 {
		burst := int(rateLimit)
		if burst < 1 {
			burst = 1 // fractional rates would otherwise truncate to a zero burst
		}
		r.Use(throttle(rate.NewLimiter(rate.Limit(rateLimit), burst)))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", handleStats(st))
		api.Get("/papers", handleListPapers(st))
		api.Get("/papers/{id}", handleGetPaper(st))
	})
	return r
}

// throttle rejects requests above the shared rate with a 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleStats(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := funnel.New(st).Snapshot(r.Context())
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleListPapers(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		papers, err := st.ListPapers(r.Context(), f)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if papers == nil {
			papers = []model.Paper{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(papers),
			"papers": papers,
		})
	}
}

func handleGetPaper(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := st.GetPaper(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "paper not found"})
				return
			}
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Stage:     model.SelectionStage(q.Get("stage")),
		SourceAPI: q.Get("source_api"),
	}

	if v := q.Get("canonical"); v != "" {
		canonical, err := strconv.ParseBool(v)
		if err != nil {
			return f, eris.Errorf("invalid canonical value %q", v)
		}
		f.Canonical = &canonical
	}
	if v := q.Get("min_score"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, eris.Errorf("invalid min_score value %q", v)
		}
		f.MinScore = &min
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, eris.Errorf("invalid limit value %q", v)
		}
		f.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return f, eris.Errorf("invalid offset value %q", v)
		}
		f.Offset = offset
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
