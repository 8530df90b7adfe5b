package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/tensormd/repops/internal/api"
	"github.com/tensormd/repops/internal/apollo"
	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/llm"
	"github.com/tensormd/repops/internal/mailer"
	"github.com/tensormd/repops/internal/pkg/distlock"
	"github.com/tensormd/repops/internal/repository/postgres"
	"github.com/tensormd/repops/internal/service/alerts"
	"github.com/tensormd/repops/internal/service/autopilot"
	"github.com/tensormd/repops/internal/service/deliverability"
	"github.com/tensormd/repops/internal/service/inbox"
	"github.com/tensormd/repops/internal/service/outbound"
	"github.com/tensormd/repops/internal/service/reputation"
	"github.com/tensormd/repops/internal/suppression"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	log.Println("[server] connected to postgres")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		log.Println("[server] connected to redis")
	}
	locks := distlock.NewFactory(redisClient, db, 10*time.Minute)

	var transport mailer.Transport
	if cfg.SES.Enabled {
		transport, err = mailer.NewSESTransport(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("ses transport: %v", err)
		}
		log.Println("[server] email transport: ses")
	} else {
		transport, err = mailer.NewSMTPTransport(cfg.SMTP)
		if err != nil {
			log.Fatalf("smtp transport: %v", err)
		}
		log.Println("[server] email transport: smtp")
	}

	drafter, err := llm.NewBedrock(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("bedrock: %v", err)
	}

	suppressSvc := suppression.NewService(postgres.NewOptOutRepo(db))

	var alertTransport mailer.Transport
	if cfg.Alerts.Enabled {
		alertTransport = transport
	}
	alertSvc := alerts.New(postgres.NewAlertRepo(db), alertTransport, cfg.Alerts.NotifyEmail)

	rates := postgres.NewRatesRepo(db)
	deliverSvc := deliverability.New(
		postgres.NewThrottleStore(db), rates,
		cfg.Outbound.SendCapDaily, cfg.Deliverability,
		cfg.Autopilot.StopBouncePct, cfg.Autopilot.StopOptOutPct,
	)

	autopilotSvc := autopilot.New(
		postgres.NewAutopilotRepo(db), deliverSvc, rates, suppressSvc,
		transport, cfg.Autopilot,
	)

	outboundSvc := outbound.New(
		postgres.NewOutboundRepo(db), apollo.NewClient(cfg.Apollo), suppressSvc,
		deliverSvc, transport, autopilotSvc,
		cfg.Outbound.EnrichCapDaily, cfg.SMTP.PhysicalAddress,
	)

	// Replies arrive through the inbound webhook; no mailbox poller here.
	inboxProc := inbox.NewProcessor(nil, postgres.NewInboxRepo(db), autopilotSvc, suppressSvc, 0)

	reputationSvc := reputation.New(
		postgres.NewReputationRepo(db), reputation.GBPFactory(cfg.Reviews),
		drafter, alertSvc, cfg.Reputation,
	)

	server := api.NewServer(api.Deps{
		Outbound:       outboundSvc,
		Autopilot:      autopilotSvc,
		Deliverability: deliverSvc,
		Inbox:          inboxProc,
		Reputation:     reputationSvc,
		Alerts:         alertSvc,
		Suppression:    suppressSvc,
		Locks:          locks,
	}, cfg.Server.OpsToken)

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}
