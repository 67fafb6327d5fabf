package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	api "github.com/mind-engage/mindengage-training/internal/api/http"
	guest "github.com/mind-engage/mindengage-training/internal/auth"
	auth "github.com/mind-engage/mindengage-training/internal/auth/middleware"
	"github.com/mind-engage/mindengage-training/internal/config"
	"github.com/mind-engage/mindengage-training/internal/events"
	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/phishing"
	"github.com/mind-engage/mindengage-training/internal/progress"
	"github.com/mind-engage/mindengage-training/internal/training"
	"github.com/mind-engage/mindengage-training/internal/unlock"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), loadConfig(cmd))
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides HTTP_ADDR)")
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	dbh, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer dbh.Close()

	catalog := training.NewSQLCatalog(dbh)
	store := training.NewSQLStore(dbh, cfg.DBDriver)
	em := events.NewEmitter(slog.Default(), events.NewEventRepo(dbh), cfg.SiteID)

	tracker := progress.NewTracker(catalog, store, em)
	gate := unlock.NewGate(catalog, store, tracker, em, cfg.RetakeCooldown)
	svc := api.Services{
		Catalog:    catalog,
		Tracker:    tracker,
		Engine:     grading.NewEngine(catalog, store, gate, em),
		Gate:       gate,
		Simulation: phishing.NewService(store, em, phishing.Thresholds{Medium: cfg.RiskMediumAt, High: cfg.RiskHighAt}),
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, cfg.AdminUser, cfg.AdminPassHash))
	if cfg.EnableGuestAuth {
		r.Post("/auth/guest", guest.GuestLoginHandler(authSvc))
	}

	r.Route("/api", func(pr chi.Router) {
		if cfg.EnableAuth {
			pr.Use(auth.JWTMiddleware(authSvc))
		} else {
			pr.Use(auth.OptionalJWT(authSvc))
		}
		api.MountAPI(pr, svc)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", api.ReadyHandler(dbh))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", cfg.HTTPAddr), slog.String("mode", string(cfg.Mode)),
			slog.String("db", cfg.DBDriver), slog.Bool("auth", cfg.EnableAuth))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
