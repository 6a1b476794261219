package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/bot"
	"github.com/whisper/modbot/internal/claim"
	"github.com/whisper/modbot/internal/config"
	"github.com/whisper/modbot/internal/gateway"
	"github.com/whisper/modbot/internal/logging"
	"github.com/whisper/modbot/internal/messaging"
	"github.com/whisper/modbot/internal/moderation"
	"github.com/whisper/modbot/internal/ops"
	"github.com/whisper/modbot/internal/rules"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	filter, err := loadFilter(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to build content filter")
	}
	log.WithFields(logrus.Fields{
		"terms":      filter.Matcher().Terms(),
		"rules_file": cfg.RulesFile,
	}).Info("content filter ready")

	opsServer := ops.NewServer(cfg.OpsAddr, log)

	// --- Redis ---
	var rdb *redis.Client
	var claims *claim.Store
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Redis")
		}
		claims = claim.NewStore(rdb, cfg.ReplicaName, cfg.ClaimTTL)
		opsServer.AddCheck("redis", func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return rdb.Ping(ctx).Err() == nil
		})
	}

	// --- NATS ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.QueueGroup = cfg.NATSQueue
		natsConfig.Name = "modbot-" + cfg.ReplicaName

		natsClient, err = messaging.NewNATSClient(natsConfig, log)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to NATS")
		}

		responder := moderation.NewResponder(filter, natsClient, log)
		if err := natsClient.SubscribeModerationCheck(natsConfig.QueueGroup, responder.Handle); err != nil {
			log.WithError(err).Fatal("failed to subscribe to moderation checks")
		}
		opsServer.AddCheck("nats", natsClient.Connected)
	}

	// --- Discord ---
	var (
		discord *gateway.Discord
		handler *bot.Handler
	)
	if cfg.DiscordToken != "" {
		discord, err = gateway.New(cfg.DiscordToken, log)
		if err != nil {
			log.WithError(err).Fatal("failed to create Discord session")
		}

		opts := []bot.Option{bot.WithLogger(log)}
		if claims != nil {
			opts = append(opts, bot.WithClaimer(claims))
		}
		if natsClient != nil {
			opts = append(opts, bot.WithEventPublisher(natsClient))
		}
		handler = bot.NewHandler(filter, discord, bot.Config{
			Source:        "discord",
			Policy:        cfg.BotMessagePolicy,
			DeleteDelay:   cfg.DeleteDelay,
			DeleteTimeout: cfg.DeleteTimeout,
		}, opts...)

		discord.OnReady(handler.SetSelfID)
		discord.OnMessage(func(msg bot.Message) { handler.HandleMessage(msg) })

		if err := discord.Open(); err != nil {
			log.WithError(err).Fatal("failed to connect to Discord")
		}
	}

	if err := opsServer.Start(); err != nil {
		log.WithError(err).Fatal("failed to start ops server")
	}

	log.WithFields(logrus.Fields{
		"discord":      discord != nil,
		"nats_url":     cfg.NATSURL,
		"redis_addr":   cfg.RedisAddr,
		"delete_delay": cfg.DeleteDelay.String(),
		"bot_policy":   string(cfg.BotMessagePolicy),
		"ops_addr":     cfg.OpsAddr,
		"replica_name": cfg.ReplicaName,
	}).Info("moderator running")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	if handler != nil {
		handler.Stop()
	}
	if discord != nil {
		if err := discord.Close(); err != nil {
			log.WithError(err).Warn("error closing Discord session")
		}
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("ops server shutdown error")
	}
}

// loadFilter builds the filter from the rules file, or the built-in rules
// when none is configured. FORBIDDEN_TERMS replaces the term list.
func loadFilter(cfg *config.Config) (*moderation.Filter, error) {
	r := rules.Default()
	if cfg.RulesFile != "" {
		var err error
		if r, err = rules.Load(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	if len(cfg.ForbiddenTerms) > 0 {
		r.Terms = cfg.ForbiddenTerms
	}
	return r.Filter()
}
