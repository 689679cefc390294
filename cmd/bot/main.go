package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"slack_pay_bridge_bot/internal/bot"
	"slack_pay_bridge_bot/internal/config"
	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/logging"
	"slack_pay_bridge_bot/internal/slack"
	"slack_pay_bridge_bot/internal/store"
	"slack_pay_bridge_bot/internal/synapse"
	"slack_pay_bridge_bot/internal/web"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	authTestTimeout        = 10 * time.Second
	webShutdownTimeout     = 10 * time.Second
	socketReconnectDelay   = 2 * time.Second

	gatewayIPAddress = "127.0.0.1"
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	userRepository := domain.NewUserRepository(mongoManager.Users())
	recurringRepository := domain.NewRecurringTransactionRepository(mongoManager.RecurringTransactions())
	statsProvider := store.NewStatsProvider(mongoManager.Users(), mongoManager.RecurringTransactions())

	synapseClient := synapse.NewClient(nil, cfg.SynapseBaseURL, synapse.Credentials{
		ClientID:     cfg.SynapseClientID,
		ClientSecret: cfg.SynapseClientSecret,
		Fingerprint:  cfg.SynapseFingerprint,
		IPAddress:    gatewayIPAddress,
	}, cfg.ProviderTimeout)

	slackClient := slack.NewClient(nil, cfg.SlackBaseURL, cfg.SlackBotToken, cfg.SlackAppToken)

	authCtx, cancelAuth := context.WithTimeout(context.Background(), authTestTimeout)
	identity, err := slackClient.AuthTest(authCtx)
	cancelAuth()
	if err != nil {
		logger.WithError(err).Error("slack auth test error")
		fmt.Fprintf(os.Stderr, "slack auth test error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":   "slack_ready",
		"team":    identity.Team,
		"user_id": identity.UserID,
	}).Info("slack credentials verified")

	handlers := bot.NewHandlers(synapseClient, userRepository, recurringRepository)
	registry := bot.NewRegistry(handlers)
	resolver := bot.NewResolver(userRepository, synapseClient)
	dispatcher := bot.NewDispatcher(bot.DispatcherDeps{
		Registry:        registry,
		Resolver:        resolver,
		Users:           userRepository,
		Poster:          slackClient,
		Mention:         cfg.AtBot(),
		RegisterURLBase: cfg.RegisterURLBase,
	})

	webServer := web.NewServer(cfg, web.Deps{
		Users:    userRepository,
		Provider: synapseClient,
		Mongo:    mongoManager,
		Stats:    statsProvider,
	})

	go func() {
		if err := webServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("web server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	socketCtx, cancelSocket := context.WithCancel(context.Background())
	socketDone := make(chan struct{})

	go func() {
		defer close(socketDone)
		runSocketLoop(socketCtx, slackClient, dispatcher, logger)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping socket firehose")
	case <-socketDone:
		logger.WithField("event", "socket_stopped_early").Warn("socket firehose stopped before shutdown signal")
	}

	cancelSocket()
	<-socketDone

	webCtx, cancelWeb := context.WithTimeout(context.Background(), webShutdownTimeout)
	if err := webServer.Shutdown(webCtx); err != nil {
		logger.WithError(err).Error("web server shutdown error")
	}
	cancelWeb()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// runSocketLoop keeps one Socket Mode connection alive until ctx is cancelled,
// reconnecting with a fixed delay after any read or dial failure.
func runSocketLoop(ctx context.Context, client *slack.Client, dispatcher *bot.Dispatcher, logger *logrus.Entry) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := client.ConnectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).WithField("event", "socket_dial_error").Warn("socket connect failed, retrying")
			if slack.SleepWithContext(ctx, socketReconnectDelay) != nil {
				return
			}
			continue
		}

		logger.WithField("event", "socket_connected").Info("socket firehose connected")

		err = slack.ConsumeSocket(ctx, conn, func(event slack.Event) {
			dispatcher.Dispatch(ctx, event)
		})
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WithError(err).WithField("event", "socket_read_error").Warn("socket firehose interrupted, reconnecting")
		} else {
			logger.WithField("event", "socket_refresh").Info("socket asked to reconnect")
		}
		if slack.SleepWithContext(ctx, socketReconnectDelay) != nil {
			return
		}
	}
}
