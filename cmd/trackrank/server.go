package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"trackrank/internal/app/albums"
	"trackrank/internal/app/library"
	"trackrank/internal/app/rankings"
	"trackrank/internal/app/users"
	"trackrank/internal/auth"
	"trackrank/internal/catalog"
	"trackrank/internal/config"
	"trackrank/internal/events"
	"trackrank/internal/http/middleware"
	"trackrank/internal/httpapi"
	"trackrank/internal/session"
	"trackrank/internal/store"
)

// app holds the HTTP handler and everything that must be closed on shutdown.
type app struct {
	handler http.Handler
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

func newApp(cfg *config.Config, db *sql.DB) (*app, error) {
	a := &app{}
	dataStore := store.New(db)

	httpClient := &http.Client{Timeout: cfg.Catalog.Timeout}
	tokens := catalog.NewTokenProvider(cfg.Catalog.ClientID, cfg.Catalog.ClientSecret, catalog.DefaultTokenURL, httpClient)
	catalogClient := catalog.NewSpotifyClient(tokens,
		catalog.WithHTTPClient(httpClient),
		catalog.WithRateLimit(cfg.Catalog.RateLimit),
	)

	sessions, err := newSessionStore(cfg.Session, a)
	if err != nil {
		return nil, err
	}

	publisher := newPublisher(cfg.Events)
	a.closers = append(a.closers, publisher)

	tokenManager := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTTTL)

	userSvc := users.New(dataStore, tokenManager)
	albumSvc := albums.New(catalogClient, dataStore)
	rankingSvc := rankings.New(catalogClient, dataStore, sessions, albumSvc, publisher)
	librarySvc := library.New(dataStore, rankingSvc, albumSvc)

	routes := httpapi.New(userSvc, albumSvc, rankingSvc, librarySvc).Routes()

	a.handler = middleware.Chain(routes,
		middleware.RequestLogging(log.Logger),
		middleware.Recovery(log.Logger),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.Session(cfg.Session.CookieName, cfg.Session.TTL, cfg.Session.SecureCookie),
	)
	return a, nil
}

func newSessionStore(cfg config.SessionConfig, a *app) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, client)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
		return session.NewRedisStore(client, cfg.TTL), nil
	case "", "memory":
		log.Info().Msg("using in-memory session store")
		return session.NewMemoryStore(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func newPublisher(cfg config.EventsConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info().Msg("no kafka brokers configured, ranking events disabled")
		return events.NopPublisher{}
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("publishing ranking events")
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
