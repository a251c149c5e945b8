package main

import (
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Danny02/garagen-flohmarkt/adapters/events"
	"github.com/Danny02/garagen-flohmarkt/adapters/geo"
	"github.com/Danny02/garagen-flohmarkt/adapters/store"
	"github.com/Danny02/garagen-flohmarkt/config"
	"github.com/Danny02/garagen-flohmarkt/ports"
	"github.com/Danny02/garagen-flohmarkt/service"
	transport "github.com/Danny02/garagen-flohmarkt/transport/http"
	"github.com/Danny02/garagen-flohmarkt/webauthn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	wmLogger := watermill.NewStdLogger(false, false)

	var kv ports.Store
	var publisher message.Publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)

		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			logger.Fatal("Failed to create Redis publisher", zap.Error(err))
		}
		kv = store.NewRedisStore(redisClient)
	} else {
		logger.Warn("no redis configured, using in-memory store")
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		kv = store.NewMemoryStore()
	}

	eventPub := events.NewWatermillPublisher(publisher)
	geocoder := geo.NewNominatimGeocoder(cfg.NominatimURL, cfg.GeocodeTimeout)
	rp := &webauthn.RelyingParty{AllowedOrigins: cfg.Origins()}

	authService := service.NewAuthService(kv, rp, eventPub, logger,
		service.WithChallengeTTL(cfg.ChallengeTTL),
		service.WithSessionTTL(cfg.SessionTTL),
	)
	standService := service.NewStandService(kv, geocoder, eventPub, logger)

	handlers := transport.NewHandlers(standService, authService, cfg.AdminToken, logger)
	router := transport.SetupRouter(handlers, logger)

	logger.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
