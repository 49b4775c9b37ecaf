package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/campusclub/shop/internal/cache"
	"github.com/campusclub/shop/internal/config"
	"github.com/campusclub/shop/internal/es"
	"github.com/campusclub/shop/internal/handlers"
	"github.com/campusclub/shop/internal/logging"
	mwauth "github.com/campusclub/shop/internal/middleware/auth"
	"github.com/campusclub/shop/internal/mykafka"
	"github.com/campusclub/shop/internal/repo"
	"github.com/campusclub/shop/internal/service"
	"github.com/campusclub/shop/internal/tokens"
	httpserver "github.com/campusclub/shop/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LogLevel)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	redisKV, err := cache.NewRedis(configuration)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	store := cache.NewStore(redisKV)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), configuration.RedisConnectTimeout)
	if err := store.Ping(pingCtx); err != nil {
		// The client reconnects lazily; auth flows degrade per their
		// fail policies until the cache is back.
		logger.Warn("redis unreachable at startup", "error", err)
	}
	pingCancel()

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatalf("elasticsearch init error: %v", err)
	}

	issuer := tokens.NewIssuer(
		[]byte(configuration.JWT_SECRET),
		[]byte(configuration.REFRESH_TOKEN_SECRET),
	)

	authSvc := &service.AuthService{
		Repo:          &repo.UserRepo{DB: db},
		Cache:         store,
		Issuer:        issuer,
		AdminEmail:    configuration.ADMIN_EMAIL,
		AdminPassword: configuration.ADMIN_PASSWORD,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := &httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			Svc:           authSvc,
			Producer:      prod,
			SecureCookies: configuration.IsProduction(),
			EchoResetCode: !configuration.IsProduction(),
		},
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: prod},
		CartHandler:    &handlers.CartHandler{DB: db},
		OrderHandler:   &handlers.OrderHandler{DB: db},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
		AuthMw:         mwauth.NewMiddleware([]byte(configuration.JWT_SECRET), store),
		Cache:          store,
	}
	httpserver.Register(e, deps)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(configuration.ServerPort),
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
	}

	if err := redisKV.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
