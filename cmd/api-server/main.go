package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/auth"
	"pricewatch/internal/cache"
	"pricewatch/internal/catalog"
	"pricewatch/internal/checkpoint"
	"pricewatch/internal/ingest"
	"pricewatch/internal/progress"
	"pricewatch/internal/sources"
	"pricewatch/pkg/config"
	"pricewatch/pkg/database"
	"pricewatch/pkg/utils"
)

func main() {
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	appCfg, err := config.Load("")
	if err != nil {
		// the read API works without a crawler config; only the admin
		// checkpoint routes need the state dir
		log.Printf("config not loaded (%v), using default state dir", err)
		appCfg = &config.Config{}
	}

	router := gin.Default()

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := progress.NewHub()
	router.GET("/ws", progress.WSHandler(hub))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": stats.WSClients,
		})
	})

	// Catalog (public, read-only)
	repo := catalog.NewRepo(db)
	catalogHandler := catalog.NewHandler(repo)
	catalogHandler.RegisterRoutes(router.Group("/catalog"))

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authHandler := auth.NewHandler(tokenSvc, authCfg)
	authHandler.RegisterRoutes(router.Group("/auth"))

	// Admin (protected)
	admin := router.Group("/admin")
	admin.Use(auth.Middleware(tokenSvc))

	admin.GET("/ingest/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sources": hub.LastEvents()})
	})

	admin.POST("/checkpoints/:source/reset", func(c *gin.Context) {
		source := c.Param("source")
		if err := checkpoint.Reset(appCfg.StateDir, source); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset", "source": source})
	})

	// In-process ingest runs. Progress streams out through /ws; one run
	// per source at a time.
	props := cache.NewProperties()
	var running sync.Map
	admin.POST("/ingest/run/:source", func(c *gin.Context) {
		name := c.Param("source")
		var sc *config.SourceConfig
		for i := range appCfg.Sources {
			if appCfg.Sources[i].Name == name {
				sc = &appCfg.Sources[i]
				break
			}
		}
		if sc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown source " + name})
			return
		}

		if _, busy := running.LoadOrStore(name, true); busy {
			c.JSON(http.StatusConflict, gin.H{"error": "ingest already running for " + name})
			return
		}

		src, err := sources.Build(*sc)
		if err != nil {
			running.Delete(name)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		driver := ingest.NewDriver(repo, props, appCfg.StateDir, ingest.Options{
			RootAliases: sc.RootAliases,
			Notifier:    hub,
		})
		go func() {
			defer running.Delete(name)
			if _, err := driver.Run(context.Background(), src); err != nil {
				log.Printf("ingest %s: %v", name, err)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "started", "source": name})
	})

	httpSrv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("HTTP API server listening on :8080")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
