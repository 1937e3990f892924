// Package metrics writes pipeline observability points to InfluxDB:
// breaker transitions, classification latency, dedup flood counts, and
// queue depth.
package metrics

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/ticketmesh/ticketmesh/pkg/circuit"
)

// Sink writes points to an InfluxDB bucket. A nil Sink is valid and every
// method becomes a no-op, so metrics stay optional when InfluxDB isn't
// configured.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPI
	bucket string
	org    string
}

// New connects to InfluxDB. If url is empty, metrics are disabled and
// every call site should treat the returned Sink as absent by checking
// Enabled().
func New(url, token, org, bucket string) *Sink {
	if url == "" {
		return nil
	}
	client := influxdb2.NewClient(url, token)
	return &Sink{
		client: client,
		writer: client.WriteAPI(org, bucket),
		bucket: bucket,
		org:    org,
	}
}

// Enabled reports whether this Sink actually writes anywhere.
func (s *Sink) Enabled() bool {
	return s != nil
}

// Close flushes pending writes and releases the underlying client.
func (s *Sink) Close() {
	if !s.Enabled() {
		return
	}
	s.writer.Flush()
	s.client.Close()
}

// BreakerTransition records a circuit breaker state change.
func (s *Sink) BreakerTransition(from, to circuit.State) {
	if !s.Enabled() {
		return
	}
	p := influxdb2.NewPoint("breaker_transition",
		map[string]string{"from": from.String(), "to": to.String()},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
	s.writer.WritePoint(p)
}

// ClassificationLatency records the time the classification stage took
// for one ticket, and whether the Scorer (vs. the baseline) handled it.
func (s *Sink) ClassificationLatency(category string, usedScorer bool, latencyMs float64) {
	if !s.Enabled() {
		return
	}
	p := influxdb2.NewPoint("classification_latency_ms",
		map[string]string{"category": category, "used_scorer": boolTag(usedScorer)},
		map[string]interface{}{"latency_ms": latencyMs},
		time.Now(),
	)
	s.writer.WritePoint(p)
}

// DedupFloodCount records whether a ticket was flagged as part of a
// flash flood.
func (s *Sink) DedupFloodCount(ticketID string, flood bool) {
	if !s.Enabled() {
		return
	}
	p := influxdb2.NewPoint("dedup_flood_count",
		map[string]string{"ticket_id": ticketID},
		map[string]interface{}{"flood": flood},
		time.Now(),
	)
	s.writer.WritePoint(p)
}

// QueueDepth records a point-in-time gauge of pending queue length.
func (s *Sink) QueueDepth(ctx context.Context, depth int64) {
	if !s.Enabled() {
		return
	}
	p := influxdb2.NewPoint("queue_depth",
		nil,
		map[string]interface{}{"depth": depth},
		time.Now(),
	)
	s.writer.WritePoint(p)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// LogErrors drains the writer's async error channel to the log; callers
// should run this in its own goroutine for the lifetime of the Sink.
func (s *Sink) LogErrors(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	errCh := s.writer.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			log.Printf("metrics: influx write error: %v", err)
		}
	}
}
