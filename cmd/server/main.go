package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/valeevte/PriceWatcher/internal/chart"
	"github.com/valeevte/PriceWatcher/internal/config"
	"github.com/valeevte/PriceWatcher/internal/logging"
	"github.com/valeevte/PriceWatcher/internal/notify"
	"github.com/valeevte/PriceWatcher/internal/products"
	"github.com/valeevte/PriceWatcher/internal/scraper"
	"github.com/valeevte/PriceWatcher/internal/storage"
	"github.com/valeevte/PriceWatcher/internal/watcher"
)

func main() {
	_ = godotenv.Load() // load .env if present; not fatal if missing

	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogFile())
	if err != nil {
		// no logger yet, nothing better to do
		panic(err)
	}

	// graceful shutdown coordination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}
	if err := store.InitSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to initialize schema")
	}

	extractor := scraper.NewExtractor(logger)
	renderer := chart.NewRenderer(cfg.GraphDir(), logger)
	notifier := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)

	w := watcher.New(store, extractor, renderer, notifier, watcher.Config{
		Interval: time.Duration(cfg.DelaySeconds) * time.Second,
	}, logger)

	// start watcher loop
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		// watcher runs until ctx is cancelled
		w.Run(ctx)
	}()

	// build router and handlers
	h := products.NewHandler(store, w, renderer, logger)

	if cfg.GinMode == "" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(cfg.GinMode)
	}
	r := gin.Default()

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/products", h.CreateProduct)
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)
		api.GET("/products/:id/history", h.GetPriceHistory)
		api.GET("/products/:id/latest", h.GetLatestPrice)
		api.GET("/products/:id/stats", h.GetStats)
		api.GET("/products/:id/chart", h.GetChart)
		api.POST("/trigger", h.TriggerCheck)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// start server
	go func() {
		logger.WithField("port", cfg.Port).Info("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server ListenAndServe")
		}
	}()

	// wait for interrupt
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// stop accepting new requests, allow 15s to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}

	// wait for the watcher to finish (it reacts to ctx)
	wg.Wait()

	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("closing storage")
	}

	logger.Info("graceful shutdown complete")
}
