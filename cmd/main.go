// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/confcentral/backend/internal/cache"
	"github.com/confcentral/backend/internal/config"
	"github.com/confcentral/backend/internal/engine"
	"github.com/confcentral/backend/internal/handler"
	"github.com/confcentral/backend/internal/notifier"
	"github.com/confcentral/backend/internal/store"
	"github.com/confcentral/backend/internal/store/memstore"
	"github.com/confcentral/backend/internal/store/pgstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ── 1. Open the entity store ──────────────────────────────────────────
	var st store.Store
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("database: %v", err)
		}
		st = pgstore.New(pool)
		log.Println("✓ Connected to PostgreSQL")
	case "memory":
		st = memstore.New()
		log.Println("✓ Using in-memory store")
	default:
		log.Fatalf("unknown store backend %q", cfg.Store.Backend)
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	c := cache.New()
	eng := engine.New(st, c)
	confHandler := handler.NewConferenceHandler(eng)

	ntf := notifier.New(st, c, notifier.Options{
		PollInterval:     cfg.Notifier.PollInterval,
		AnnounceInterval: cfg.Notifier.AnnounceInterval,
		MailPerSecond:    cfg.Notifier.MailPerSecond,
	})
	notifierDone := make(chan error, 1)
	go func() { notifierDone <- ntf.Run(ctx) }()

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)
	r.Use(handler.Auth) // resolve caller identity

	// Health and metrics
	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/profile", func(r chi.Router) {
		r.Get("/", confHandler.GetProfile)
		r.Post("/", confHandler.SaveProfile)
	})
	r.Route("/conferences", func(r chi.Router) {
		r.Post("/", confHandler.CreateConference)
		r.Get("/", confHandler.ListConferences)
		r.Get("/created", confHandler.ConferencesCreated)
		r.Get("/attending", confHandler.ConferencesToAttend)
		r.Get("/{websafeConferenceKey}", confHandler.GetConference)
		r.Post("/{websafeConferenceKey}/registration", confHandler.Register)
		r.Delete("/{websafeConferenceKey}/registration", confHandler.Unregister)
		r.Post("/{websafeConferenceKey}/sessions", confHandler.CreateSession)
		r.Get("/{websafeConferenceKey}/sessions", confHandler.ListSessions)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/speaker/{speaker}", confHandler.SessionsBySpeaker)
		r.Put("/{websafeSessionKey}", confHandler.UpdateSession)
		r.Post("/{websafeSessionKey}/wishlist", confHandler.AddToWishlist)
		r.Delete("/{websafeSessionKey}/wishlist", confHandler.RemoveFromWishlist)
	})
	r.Get("/wishlist", confHandler.Wishlist)
	r.Get("/announcement", confHandler.GetAnnouncement)
	r.Get("/featured-speaker", confHandler.GetFeaturedSpeaker)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("✓ Server listening on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	<-ctx.Done()

	log.Println("shutting down server…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	if err := <-notifierDone; err != nil {
		log.Printf("notifier stopped: %v", err)
	}
	log.Println("server stopped")
}
