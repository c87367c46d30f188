package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/api"
	"github.com/papertrade/market-sim/internal/ledger"
	"github.com/papertrade/market-sim/internal/market"
	"github.com/papertrade/market-sim/internal/metrics"
	"github.com/papertrade/market-sim/internal/notify"
	"github.com/papertrade/market-sim/internal/sim"
	"github.com/papertrade/market-sim/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "8080")
	ctx := context.Background()

	// --- Snapshot store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("snapshots in PostgreSQL")
	} else {
		dir := envOr("SNAPSHOT_DIR", "data")
		fs, err := store.NewFileStore(dir)
		if err != nil {
			slog.Error("snapshot dir unavailable", "err", err)
			os.Exit(1)
		}
		st = fs
		slog.Info("snapshots on disk", "dir", dir)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Cash ledger ---
	opening, err := decimal.NewFromString(envOr("OPENING_BALANCE", "1000"))
	if err != nil {
		slog.Error("invalid OPENING_BALANCE", "err", err)
		os.Exit(1)
	}

	var cash ledger.Cash
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		cash = ledger.NewRedisCash(rdb, opening)
		slog.Info("cash ledger in Redis")
	} else {
		cash = ledger.NewMemoryCash(opening)
		slog.Warn("REDIS_URL not set, cash balances will not persist")
	}

	// --- Restore or seed the market ---
	instruments, err := st.LoadMarket(ctx)
	if err != nil {
		slog.Error("load market snapshot failed", "err", err)
		os.Exit(1)
	}
	if len(instruments) == 0 {
		instruments = market.SeedInstruments()
		if err := st.SaveMarket(ctx, instruments); err != nil {
			slog.Error("save seeded market failed", "err", err)
			os.Exit(1)
		}
		slog.Info("seeded fresh market", "instruments", len(instruments))
	} else {
		slog.Info("restored market snapshot", "instruments", len(instruments))
	}

	portfolios, err := st.LoadPortfolios(ctx)
	if err != nil {
		slog.Error("load portfolios snapshot failed", "err", err)
		os.Exit(1)
	}

	// --- Notification sinks ---
	hub := notify.NewHub()
	go hub.Run()

	webhooks := notify.NewWebhookSink(10 * time.Second)
	subscribers, err := st.LoadSubscribers(ctx)
	if err != nil {
		slog.Error("load subscribers snapshot failed", "err", err)
		os.Exit(1)
	}
	webhooks.Load(subscribers)

	// --- Simulation service ---
	svc := sim.New(market.NewRegistry(instruments), portfolios, st, cash, sim.Options{
		Feed:          hub,
		Webhooks:      webhooks,
		TickInterval:  envDuration("TICK_INTERVAL", 15*time.Minute),
		ShockInterval: envDuration("SHOCK_INTERVAL", 2*time.Hour),
	})

	simCtx, stopSim := context.WithCancel(ctx)
	go svc.Run(simCtx)

	// --- HTTP router ---
	srv := api.NewServer(svc)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-sim"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)

		r.Get("/instruments", srv.ListInstruments)
		r.Get("/instruments/{symbol}", srv.GetInstrument)

		r.Post("/trades/buy", srv.Buy)
		r.Post("/trades/sell", srv.Sell)

		r.Get("/portfolio/{participant}", srv.GetPortfolio)
		r.Get("/leaderboard", srv.Leaderboard)
		r.Get("/movers", srv.Movers)

		r.Post("/subscriptions", srv.Subscribe)
		r.Delete("/subscriptions/{participant}", srv.Unsubscribe)
	})

	// --- Server ---
	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-sim listening", "port", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSim()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-sim...")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-sim stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}
