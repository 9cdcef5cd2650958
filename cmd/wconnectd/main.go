package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/wconnect"
	"github.com/layer-3/wconnect/adapters/events"
	"github.com/layer-3/wconnect/adapters/relay"
	"github.com/layer-3/wconnect/adapters/store"
	"github.com/layer-3/wconnect/explorer"
	"github.com/layer-3/wconnect/transport/http"
)

const sessionTTL = 24 * time.Hour

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	bridgeURL := envOr("BRIDGE_URL", "https://bridge.walletconnect.org")
	web3URL := os.Getenv("WEB3_API_URL")
	blockscoutURL := envOr("BLOCKSCOUT_URL", "https://blockscout.com/eth/mainnet/api")
	listenAddr := envOr("LISTEN_ADDR", ":9000")

	ctx := context.Background()

	// Bridge authentication key is ephemeral; bridges that do not
	// require auth ignore the token.
	authKey, err := relay.GenerateAuthKey()
	if err != nil {
		logger.Fatal("failed to generate bridge auth key", zap.Error(err))
	}
	authToken, err := relay.AuthToken(authKey, envOr("CLIENT_NAME", "wconnectd"), bridgeURL)
	if err != nil {
		logger.Fatal("failed to sign bridge auth token", zap.Error(err))
	}

	bridge, err := relay.DialBridge(ctx, bridgeURL, authToken, logger)
	if err != nil {
		logger.Fatal("failed to connect to bridge", zap.Error(err))
	}

	meta := wconnect.Metadata{
		Name:        envOr("CLIENT_NAME", "wconnectd"),
		Description: "wconnect daemon",
		URL:         envOr("CLIENT_URL", "https://github.com/layer-3/wconnect"),
	}

	// Optional Redis: persists the session record and fans lifecycle
	// events out over a stream. Without it the session lives and dies
	// with the process.
	var sessions wconnect.Store
	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("failed to parse Redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		sessions = store.NewRedisStore(redisClient)
	}

	client, err := openClient(ctx, bridge, bridgeURL, meta, envUint("CHAIN_ID"), sessions, logger)
	if err != nil {
		logger.Fatal("failed to create client", zap.Error(err))
	}
	defer client.Close()

	if redisClient != nil {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal("failed to create Redis publisher", zap.Error(err))
		}

		client.RunCallback(events.NewWatermillPublisher(publisher, logger))
		go persistSessions(ctx, client, meta.Name, sessions, logger)
	}

	exp := explorer.NewClient(blockscoutURL, logger)

	// Setup Gin router
	router := http.SetupRouter(client, exp, web3URL)

	// Start server
	if err := router.Run(listenAddr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// openClient resumes the last session persisted under the client name,
// falling back to a fresh pairing when nothing is stored or the record
// no longer restores.
func openClient(ctx context.Context, bridge wconnect.Relay, bridgeURL string, meta wconnect.Metadata, chainID uint64, sessions wconnect.Store, logger *zap.Logger) (*wconnect.Client, error) {
	if sessions != nil {
		record, err := sessions.Load(ctx, meta.Name)
		switch {
		case err == nil:
			client, err := wconnect.Restore(ctx, bridge, record, logger.Sugar())
			if err == nil {
				logger.Info("restored persisted session", zap.String("client_name", meta.Name))
				return client, nil
			}
			logger.Warn("persisted session did not restore, pairing fresh", zap.Error(err))
		case !errors.Is(err, wconnect.ErrNoSession):
			logger.Warn("failed to load persisted session", zap.Error(err))
		}
	}
	return wconnect.New(ctx, bridge, bridgeURL, meta, chainID, logger.Sugar())
}

// persistSessions snapshots the session record periodically under the
// client name so a restart can resume a connected session.
func persistSessions(ctx context.Context, client *wconnect.Client, name string, sessions wconnect.Store, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		record, err := client.Save(ctx)
		if err != nil {
			logger.Debug("session not persistable yet", zap.Error(err))
			continue
		}
		if err := sessions.Save(ctx, name, record, sessionTTL); err != nil {
			logger.Warn("failed to persist session", zap.Error(err))
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
