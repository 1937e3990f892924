package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

// These tests exercise Router against a real etcd instance: the CAS load
// accounting goes through a concrete *clientv3.Client with no interface
// seam, so it cannot be faked the way the Redis- and Postgres-backed
// packages are. Run with `go test ./internal/agents/... -run TestRouter`
// against `etcd --listen-client-urls http://localhost:2379`; they are
// skipped under -short.

func newTestRouter(t *testing.T, prefix string, agentList []Agent) *Router {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = cli.Delete(ctx, prefix, clientv3.WithPrefix())
	require.NoError(t, err)

	return New(cli, prefix, agentList)
}

func TestRouterSelectsHighestBlendedScore(t *testing.T) {
	r := newTestRouter(t, "ticketmesh-test/select/", []Agent{
		{Name: "alice", Skills: map[ticket.Category]float64{ticket.CategoryLegal: 0.9}, Capacity: 10},
		{Name: "bob", Skills: map[ticket.Category]float64{ticket.CategoryLegal: 0.3}, Capacity: 10},
	})

	name, ok, err := r.Select(context.Background(), ticket.CategoryLegal)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name, "higher skill affinity at equal load should win")
}

func TestRouterReturnsFalseWhenEveryAgentIsSaturated(t *testing.T) {
	r := newTestRouter(t, "ticketmesh-test/saturated/", []Agent{
		{Name: "alice", Skills: map[ticket.Category]float64{ticket.CategoryTechnical: 1}, Capacity: 1},
	})
	ctx := context.Background()

	_, ok, err := r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)
	assert.False(t, ok, "a single-capacity agent already at load 1 has no room left")
}

func TestRouterPrefersLowerLoadAtEqualSkill(t *testing.T) {
	r := newTestRouter(t, "ticketmesh-test/load-tiebreak/", []Agent{
		{Name: "alice", Skills: map[ticket.Category]float64{ticket.CategoryTechnical: 0.8}, Capacity: 4},
		{Name: "bob", Skills: map[ticket.Category]float64{ticket.CategoryTechnical: 0.8}, Capacity: 4},
	})
	ctx := context.Background()

	_, _, err := r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)
	_, _, err = r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)
	_, _, err = r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)

	name, ok, err := r.Select(ctx, ticket.CategoryTechnical)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", name, "equal skill should fall back to whichever agent carries less load")
}
