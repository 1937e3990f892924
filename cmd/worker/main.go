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
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ticketmesh/ticketmesh/internal/agents"
	"github.com/ticketmesh/ticketmesh/internal/audit"
	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/classify"
	"github.com/ticketmesh/ticketmesh/internal/config"
	"github.com/ticketmesh/ticketmesh/internal/dedup"
	"github.com/ticketmesh/ticketmesh/internal/metrics"
	"github.com/ticketmesh/ticketmesh/internal/notify"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
	"github.com/ticketmesh/ticketmesh/internal/worker"
	"github.com/ticketmesh/ticketmesh/pkg/messaging"
)

// staticAgents is the out-of-the-box agent registry: skill affinity per
// category and the total number of tickets the agent can be assigned
// (load is never released, so this is not a concurrency limit). A real deployment would
// load this from an operator-managed source; here it is static
// configuration, with only per-agent load held in etcd.
var staticAgents = []agents.Agent{
	{Name: "agent.legal.alice", Capacity: 5, Skills: map[ticket.Category]float64{
		ticket.CategoryLegal: 0.95, ticket.CategoryBilling: 0.2, ticket.CategoryTechnical: 0.1,
	}},
	{Name: "agent.billing.bob", Capacity: 8, Skills: map[ticket.Category]float64{
		ticket.CategoryLegal: 0.1, ticket.CategoryBilling: 0.9, ticket.CategoryTechnical: 0.3,
	}},
	{Name: "agent.tech.carol", Capacity: 10, Skills: map[ticket.Category]float64{
		ticket.CategoryLegal: 0.05, ticket.CategoryBilling: 0.3, ticket.CategoryTechnical: 0.92,
	}},
	{Name: "agent.tech.dave", Capacity: 10, Skills: map[ticket.Category]float64{
		ticket.CategoryLegal: 0.05, ticket.CategoryBilling: 0.25, ticket.CategoryTechnical: 0.88,
	}},
}

func main() {
	cfg := config.Load()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("worker: parse REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	b := broker.New(rdb, broker.DefaultKeys())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("worker: open postgres: %v", err)
	}
	defer db.Close()
	auditStore := audit.New(db)

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("worker: connect etcd: %v", err)
	}
	defer etcdClient.Close()
	router := agents.New(etcdClient, "/ticketmesh/agents/", staticAgents)

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSUrl,
		Name:           "ticketmesh-worker",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("worker: connect nats: %v", err)
	}
	defer natsClient.Close()
	notifier := notify.New(natsClient, cfg.NotifierWebhookURL)

	metricsSink := metrics.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	defer metricsSink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsSink.Enabled() {
		go metricsSink.LogErrors(ctx)
		go reportQueueDepth(ctx, b, metricsSink)
	}

	classifier := classify.New(classify.BaselineScorer{}, metricsSink.BreakerTransition)
	dedupWindow := dedup.New(dedup.NewHashEmbedder())

	pool := worker.New(worker.Config{
		Broker:      b,
		Classifier:  classifier,
		DedupWindow: dedupWindow,
		Router:      router,
		AuditStore:  auditStore,
		Notifier:    notifier,
		Metrics:     metricsSink,
		ReadyPub:    notify.NewReadyPublisher(natsClient),
		Concurrency: cfg.WorkerConcurrency,
	})

	log.Printf("worker: starting %d workers", cfg.WorkerConcurrency)
	if err := pool.Run(ctx); err != nil {
		log.Fatalf("worker: pool error: %v", err)
	}
	log.Println("worker: stopped")
}

// reportQueueDepth polls the queue length on a fixed interval so operators
// can watch backlog grow ahead of a submit-lock overload response.
func reportQueueDepth(ctx context.Context, b *broker.Broker, sink *metrics.Sink) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := b.QueueLength(ctx)
			if err != nil {
				log.Printf("worker: queue depth: %v", err)
				continue
			}
			sink.QueueDepth(ctx, depth)
		}
	}
}
