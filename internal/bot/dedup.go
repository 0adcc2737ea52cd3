package bot

import "sync"

// recentIDs remembers the last n event ids. The oldest id is evicted first.
type recentIDs struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

func newRecentIDs(n int) *recentIDs {
	if n <= 0 {
		n = 1024
	}
	return &recentIDs{seen: make(map[string]struct{}, n), order: make([]string, n)}
}

func (r *recentIDs) contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// add records id. Only ids whose effect was applied belong here, so a
// redelivery of a failed event is processed again.
func (r *recentIDs) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return
	}
	if evict := r.order[r.next]; evict != "" {
		delete(r.seen, evict)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.seen[id] = struct{}{}
}
