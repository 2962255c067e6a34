package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serwer-licencji/internal/api"
	"serwer-licencji/internal/config"
	"serwer-licencji/internal/database"
	"serwer-licencji/internal/license"
	"serwer-licencji/internal/registry"
	"serwer-licencji/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Nie można wczytać konfiguracji: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, cfg.DB.Source)
	if err != nil {
		log.Fatalf("Nie można połączyć się z bazą danych: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("Nie można pingować bazy danych: %v", err)
	}
	log.Println("Pomyślnie połączono z bazą danych")

	wsHub := ws.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool)
	reg := registry.New()

	licenseServer := license.NewServer(cfg, store, reg, wsHub)
	if err := licenseServer.RebuildRegistry(ctx); err != nil {
		log.Fatalf("Nie można odtworzyć rejestru sesji: %v", err)
	}
	log.Printf("Rejestr sesji odtworzony z bazy: %d aktywnych sesji", reg.Len())

	reaper := license.NewReaper(store, reg, wsHub, cfg.License.ReaperInterval, cfg.License.HeartbeatTimeout)
	go reaper.Run(ctx)

	go func() {
		if err := licenseServer.Serve(ctx); err != nil {
			log.Fatalf("Serwer licencji zakończył pracę z błędem: %v", err)
		}
	}()

	statusServer := api.NewServer(cfg, store, reg, wsHub)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", statusServer.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", statusServer.ServeWsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/software", statusServer.ListSoftwareHandler)
		r.Get("/software/{softwareId}/usage", statusServer.GetSoftwareUsageHandler)
		r.Get("/software/{softwareId}/sessions", statusServer.ListSessionsHandler)
		r.Get("/sessions", statusServer.ListActiveSessionsHandler)
		r.Get("/audit", statusServer.GetAuditEventsHandler)
	})

	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("Uruchamianie serwera statusu na %s", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Nie można uruchomić serwera statusu: %v", err)
	}
	log.Println("Serwer zatrzymany")
}
