package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ticketmesh/ticketmesh/internal/api"
	"github.com/ticketmesh/ticketmesh/internal/audit"
	"github.com/ticketmesh/ticketmesh/internal/authmw"
	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/config"
	"github.com/ticketmesh/ticketmesh/internal/consumer"
	"github.com/ticketmesh/ticketmesh/internal/ingest"
	"github.com/ticketmesh/ticketmesh/pkg/messaging"
)

func main() {
	cfg := config.Load()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("api: parse REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	b := broker.New(rdb, broker.DefaultKeys())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("api: open postgres: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Printf("api: postgres not reachable yet: %v", err)
	}

	auditStore := audit.New(db)

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSUrl,
		Name:           "ticketmesh-api",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("api: connect nats: %v", err)
	}
	defer natsClient.Close()

	srv := api.New(api.Config{
		Ingest:   ingest.New(b, "api"),
		Consumer: consumer.New(b),
		Audit:    auditStore,
		Auth:     authmw.New(cfg.JWTSecret),
	})
	if err := srv.SubscribeReady(natsClient); err != nil {
		log.Fatalf("api: subscribe ready events: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("api: listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx, ":"+cfg.HTTPPort); err != nil {
		log.Fatalf("api: server error: %v", err)
	}
	log.Println("api: stopped")
}
