package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/silent-mammoth/whistle/internal/api"
	"github.com/silent-mammoth/whistle/internal/config"
	"github.com/silent-mammoth/whistle/internal/report"
	"github.com/silent-mammoth/whistle/internal/session"
	"github.com/silent-mammoth/whistle/internal/store"
	"github.com/silent-mammoth/whistle/internal/whistle"
	"github.com/silent-mammoth/whistle/internal/whistlelog"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if config.IsWeakToken(envCfg.AdminToken) {
		log.Printf("[main] warning: WHISTLE_ADMIN_TOKEN is weak; use a long random token")
	}

	// 2. Open and migrate the whistle database
	if err := os.MkdirAll(envCfg.StateDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create state dir: %v\n", err)
		os.Exit(1)
	}
	db, err := store.OpenDB(filepath.Join(envCfg.StateDir, "whistle.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 3. Wire the interception layer around the demo app
	repo := whistlelog.NewRepo(db)
	sessions := session.NewStore(db, envCfg.SessionCookieName)
	resolver := whistle.NewResolver(whistle.AnonymousIdentity{}, sessions, envCfg.UserIDField)
	recorder := whistle.NewRecorder(repo, resolver, whistle.RecorderConfig{
		AutologRequestMethod: envCfg.AutologRequestMethod,
		AutologRequestPath:   envCfg.AutologRequestPath,
		AutologResponseCode:  envCfg.AutologResponseCode,
	})
	app := whistle.NewMiddleware(whistle.MiddlewareConfig{
		ClientEventPath: envCfg.ClientEventPath,
		UseCookies:      envCfg.UseCookies,
	}, recorder, demoApp())

	// 4. Reporting engine and API server
	engine := report.NewEngine(repo, report.EngineConfig{
		BotDenylist:       envCfg.BotDenylist,
		TopValues:         envCfg.TopValues,
		ChartCacheTTL:     envCfg.ChartCacheTTL,
		ChartCacheEntries: envCfg.ChartCacheEntries,
	})
	srv := api.NewServer(envCfg.ListenAddress, envCfg.Port, envCfg.AdminToken, engine, app)

	// 5. Scheduled database maintenance
	maintenance, err := whistlelog.NewMaintenance(db, envCfg.DBMaintenanceSchedule)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	maintenance.Start()
	defer maintenance.Stop()

	go func() {
		log.Printf("whistle server starting on %s:%d", envCfg.ListenAddress, envCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// demoApp is a minimal instrumented application showing the middleware in
// action. Real deployments wrap their own handler instead.
func demoApp() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if n := whistle.FromContext(r.Context()); n != nil {
			n.AddRequest("visited home")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!doctype html><title>whistle demo</title>`+
			`<script src="/ui/whistle.js"></script>`+
			`<h1>whistle demo</h1><p>Dashboard at <a href="/ui/">/ui/</a>.</p>`)
	})
	return mux
}
