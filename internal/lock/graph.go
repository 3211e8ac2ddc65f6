package lock

import "github.com/tuannm99/heapdb/internal/txn"

// waitGraph records waits-for edges: waiter -> holders it is blocked on.
// Callers synchronize access (Manager.mu).
type waitGraph struct {
	edges map[txn.ID]map[txn.ID]struct{}
}

func newWaitGraph() *waitGraph {
	return &waitGraph{edges: make(map[txn.ID]map[txn.ID]struct{})}
}

// set replaces the outgoing edges of waiter.
func (g *waitGraph) set(waiter txn.ID, holders []txn.ID) {
	out := make(map[txn.ID]struct{}, len(holders))
	for _, h := range holders {
		out[h] = struct{}{}
	}
	g.edges[waiter] = out
}

// clear drops the outgoing edges of tid (it is no longer waiting).
func (g *waitGraph) clear(tid txn.ID) {
	delete(g.edges, tid)
}

// remove drops tid as a waiter and as a holder.
func (g *waitGraph) remove(tid txn.ID) {
	delete(g.edges, tid)
	for waiter, holders := range g.edges {
		delete(holders, tid)
		if len(holders) == 0 {
			delete(g.edges, waiter)
		}
	}
}

// reaches reports whether target is reachable from any of the start nodes.
// Called with start = holders of the requested page and target = requester,
// a true result means waiting would close a cycle.
func (g *waitGraph) reaches(start []txn.ID, target txn.ID) bool {
	visited := make(map[txn.ID]bool)
	stack := append([]txn.ID(nil), start...)

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		for next := range g.edges[cur] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// waiting returns the transactions currently blocked.
func (g *waitGraph) waiting() []txn.ID {
	out := make([]txn.ID, 0, len(g.edges))
	for tid := range g.edges {
		out = append(out, tid)
	}
	return out
}
