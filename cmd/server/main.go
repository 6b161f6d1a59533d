package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/es"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/handlers"
	authhandler "github.com/Skotchmaster/storefront/internal/handlers/auth"
	carthandler "github.com/Skotchmaster/storefront/internal/handlers/cart"
	"github.com/Skotchmaster/storefront/internal/logging"
	cartsvc "github.com/Skotchmaster/storefront/internal/service/cart"
	"github.com/Skotchmaster/storefront/internal/service/token"
	httpserver "github.com/Skotchmaster/storefront/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	var producer events.Producer = events.NopProducer{}
	if configuration.KAFKA_ADDRESS != "" {
		producer = events.NewKafkaProducer(configuration.KAFKA_ADDRESS)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	tokens := &token.Service{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}

	deps := httpserver.Deps{
		DB:               db,
		JWTSecret:        jwtSecret,
		AuthHandler:      &authhandler.AuthHandler{DB: db, Tokens: tokens, Producer: producer},
		CartHandler:      &carthandler.CartHandler{Service: &cartsvc.Service{DB: db}, Producer: producer},
		DashboardHandler: &handlers.DashboardHandler{DB: db},
		ProductHandler:   &handlers.ProductHandler{DB: db, Producer: producer},
		CategoryHandler:  &handlers.CategoryHandler{DB: db},
		SearchHandler:    &handlers.SearchHandler{ES: esClient, Index: "product"},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
