package correlator

import (
	"strconv"
	"sync"
)

// KeyRegistry disambiguates link keys seen more than once within a run. The
// nth repeat of a key gets the suffix "-n". Start and end sides count
// independently so matching repeats pair up.
type KeyRegistry struct {
	mu    sync.Mutex
	start map[string]int
	end   map[string]int
}

func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{start: make(map[string]int), end: make(map[string]int)}
}

func (r *KeyRegistry) Start(key string) string {
	return r.next(r.start, key)
}

func (r *KeyRegistry) End(key string) string {
	return r.next(r.end, key)
}

func (r *KeyRegistry) next(seen map[string]int, key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := seen[key]
	seen[key] = n + 1
	if n == 0 {
		return key
	}
	return key + "-" + strconv.Itoa(n)
}
