// Package agents implements the skill-and-load-based agent router. Static
// skills and capacity are configured once at startup; load is shared
// mutable state held in etcd so the load <= capacity invariant holds
// across an entire worker fleet, not just one process.
package agents

import (
	"context"
	"fmt"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

// maxCASAttempts bounds retries when two workers race on the same agent's
// load key; etcd's compare-and-swap means at most one wins per attempt.
const maxCASAttempts = 8

// Agent is a static registry entry: name, per-category skill affinity, and
// total capacity. Load is never stored here — it always lives in etcd.
type Agent struct {
	Name     string
	Skills   map[ticket.Category]float64
	Capacity int
}

// Router picks one agent per category by blended skill-and-availability
// score, subject to capacity, with load mutated transactionally in etcd.
type Router struct {
	etcd      *clientv3.Client
	keyPrefix string
	agents    []Agent // insertion order, used as the tie-break
}

// New builds a Router over a static agent list and an etcd client that
// holds each agent's current load at keyPrefix+name+"/load".
func New(etcd *clientv3.Client, keyPrefix string, agents []Agent) *Router {
	return &Router{etcd: etcd, keyPrefix: keyPrefix, agents: agents}
}

func (r *Router) loadKey(name string) string {
	return r.keyPrefix + name + "/load"
}

func (r *Router) currentLoad(ctx context.Context, name string) (int64, int64, error) {
	resp, err := r.etcd.Get(ctx, r.loadKey(name))
	if err != nil {
		return 0, 0, fmt.Errorf("agents: get load for %s: %w", name, err)
	}
	if len(resp.Kvs) == 0 {
		return 0, 0, nil
	}
	load, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("agents: parse load for %s: %w", name, err)
	}
	return load, resp.Kvs[0].ModRevision, nil
}

// Select returns the highest-scoring eligible agent for category, or
// ("", false) when every agent is at capacity. On a successful pick, the
// agent's load is atomically incremented in etcd before returning.
func (r *Router) Select(ctx context.Context, category ticket.Category) (string, bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		type candidate struct {
			agent Agent
			load  int64
			rev   int64
			score float64
		}

		var best *candidate
		for _, a := range r.agents {
			load, rev, err := r.currentLoad(ctx, a.Name)
			if err != nil {
				return "", false, err
			}
			if load >= int64(a.Capacity) {
				continue
			}
			s := 0.6*a.Skills[category] + 0.4*(1-float64(load)/float64(a.Capacity))
			if best == nil || s > best.score {
				best = &candidate{agent: a, load: load, rev: rev, score: s}
			}
		}

		if best == nil {
			return "", false, nil
		}

		ok, err := r.casIncrement(ctx, best.agent.Name, best.load, best.rev)
		if err != nil {
			return "", false, err
		}
		if ok {
			return best.agent.Name, true, nil
		}
		// Lost the race to another worker; recompute from fresh state.
	}
	return "", false, fmt.Errorf("agents: select %s: exhausted %d CAS attempts", category, maxCASAttempts)
}

func (r *Router) casIncrement(ctx context.Context, name string, observedLoad, rev int64) (bool, error) {
	return r.casSet(ctx, name, observedLoad+1, rev)
}

// casSet writes newLoad for name, succeeding only if the key's
// ModRevision still matches rev (or the key doesn't exist yet and rev is
// 0), so a concurrent writer never gets silently overwritten.
func (r *Router) casSet(ctx context.Context, name string, newLoad, rev int64) (bool, error) {
	key := r.loadKey(name)
	txn := r.etcd.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, strconv.FormatInt(newLoad, 10)))
	resp, err := txn.Commit()
	if err != nil {
		return false, fmt.Errorf("agents: cas set %s: %w", name, err)
	}
	return resp.Succeeded, nil
}
