package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/engine"
	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/monitoring"
	"github.com/sells-group/eva-cli/internal/schedule"
	"github.com/sells-group/eva-cli/internal/store"
)

var servePort int

// runController is the part of the engine the HTTP API drives.
type runController interface {
	Run(ctx context.Context) (*engine.RunStats, error)
	LastRun() *engine.RunStats
	Running() bool
}

// recordReader is the read side of the store the HTTP API exposes.
type recordReader interface {
	ListConfidence(ctx context.Context, filter store.ConfidenceFilter) ([]model.ConfidenceRecord, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]model.SignalEvent, error)
	Ping(ctx context.Context) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring API and run scheduled scoring passes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		eng, err := initEngine(st, engineOverrides{})
		if err != nil {
			return err
		}
		runner := monitoring.NewChecker(eng, monitoring.NewAlerter(cfg.Monitoring))

		if spec := cfg.Schedule.Spec; spec != "" {
			sched := schedule.New(ctx, zap.L())
			if err := sched.Add(spec, func(ctx context.Context) {
				if _, err := runner.Run(ctx); err != nil {
					zap.L().Error("scheduled score run failed", zap.Error(err))
				}
			}); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
			zap.L().Info("scoring on schedule", zap.String("spec", spec))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, runner, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API routes. Runs triggered over HTTP use ctx, so
// they stop when the server shuts down.
func buildRouter(ctx context.Context, runs runController, reader recordReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status, code := "ok", http.StatusOK
		if err := reader.Ping(req.Context()); err != nil {
			zap.L().Warn("health: store ping failed", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSONResponse(w, code, map[string]any{"status": status, "running": runs.Running()})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/last", func(w http.ResponseWriter, _ *http.Request) {
			last := runs.LastRun()
			if last == nil {
				writeError(w, http.StatusNotFound, "no completed run")
				return
			}
			writeJSONResponse(w, http.StatusOK, last)
		})

		r.Post("/", func(w http.ResponseWriter, _ *http.Request) {
			if runs.Running() {
				writeError(w, http.StatusConflict, "run already in progress")
				return
			}

			// Run asynchronously; a race with another trigger surfaces as ErrRunInProgress.
			go func() {
				stats, err := runs.Run(ctx)
				if err != nil {
					zap.L().Error("triggered score run failed", zap.Error(err))
					return
				}
				zap.L().Info("triggered score run complete",
					zap.String("run_id", stats.RunID),
					zap.Int("scored", stats.Scored),
				)
			}()

			writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})
	})

	r.Get("/confidence", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, err := queryLimit(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter, err := confidenceFilter(q.Get("day"), q.Get("band"), q.Get("brand"), q.Get("version"), limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		recs, err := reader.ListConfidence(req.Context(), filter)
		if err != nil {
			zap.L().Error("list confidence failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list confidence failed")
			return
		}
		if recs == nil {
			recs = []model.ConfidenceRecord{}
		}
		writeJSONResponse(w, http.StatusOK, recs)
	})

	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, err := queryLimit(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter := store.EventFilter{
			Type:  model.EventType(strings.ToUpper(q.Get("type"))),
			Brand: q.Get("brand"),
			Limit: limit,
		}
		if s := q.Get("since"); s != "" {
			since, err := parseSince(s, time.Now())
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Since = &since
		}

		events, err := reader.ListEvents(req.Context(), filter)
		if err != nil {
			zap.L().Error("list events failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list events failed")
			return
		}
		if events == nil {
			events = []model.SignalEvent{}
		}
		writeJSONResponse(w, http.StatusOK, events)
	})

	return r
}

// queryLimit parses an optional limit, defaulting to 100.
func queryLimit(s string) (int, error) {
	if s == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, eris.Errorf("invalid limit %q", s)
	}
	return n, nil
}

func writeJSONResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONResponse(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
