package cooperate

import (
	"sort"
	"sync"
)

// registry holds listener pids and observers. It is written from caller goroutines
// while the worker is stopped and read by the actor, so it carries its own lock.
type registry struct {
	mu             sync.Mutex
	listeners      map[int32]struct{}
	hotArea        map[int32]struct{}
	eventListeners map[string]map[int32]struct{}
	observers      []Observer
}

func newRegistry() *registry {
	return &registry{
		listeners:      make(map[int32]struct{}),
		hotArea:        make(map[int32]struct{}),
		eventListeners: make(map[string]map[int32]struct{}),
	}
}

func (r *registry) addListener(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[pid] = struct{}{}
}

func (r *registry) removeListener(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, pid)
}

func (r *registry) addHotAreaListener(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hotArea[pid] = struct{}{}
}

func (r *registry) removeHotAreaListener(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hotArea, pid)
}

func (r *registry) addEventListener(networkID string, pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.eventListeners[networkID]
	if !ok {
		set = make(map[int32]struct{})
		r.eventListeners[networkID] = set
	}
	set[pid] = struct{}{}
}

func (r *registry) removeEventListener(networkID string, pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.eventListeners[networkID]
	if !ok {
		return
	}
	delete(set, pid)
	if len(set) == 0 {
		delete(r.eventListeners, networkID)
	}
}

func (r *registry) addObserver(o Observer) {
	if o == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.observers {
		if existing == o {
			return
		}
	}
	r.observers = append(r.observers, o)
}

func (r *registry) removeObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// recipients returns the pids interested in messages about networkID, sorted and
// without duplicates, excluding skip.
func (r *registry) recipients(networkID string, skip int32) []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int32]struct{}, len(r.listeners))
	for pid := range r.listeners {
		seen[pid] = struct{}{}
	}
	for pid := range r.eventListeners[networkID] {
		seen[pid] = struct{}{}
	}
	delete(seen, skip)
	return sortedPids(seen)
}

func (r *registry) hotAreaListeners() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedPids(r.hotArea)
}

func (r *registry) observerList() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Observer, len(r.observers))
	copy(out, r.observers)
	return out
}

type registrySnapshot struct {
	Listeners        []int32
	HotAreaListeners []int32
	EventListeners   map[string][]int32
	Observers        int
}

func (r *registry) snapshot() registrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make(map[string][]int32, len(r.eventListeners))
	for id, set := range r.eventListeners {
		events[id] = sortedPids(set)
	}
	return registrySnapshot{
		Listeners:        sortedPids(r.listeners),
		HotAreaListeners: sortedPids(r.hotArea),
		EventListeners:   events,
		Observers:        len(r.observers),
	}
}

func sortedPids(set map[int32]struct{}) []int32 {
	out := make([]int32, 0, len(set))
	for pid := range set {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
