package storage

import (
	"math/rand"
	"sync"
)

// SystemRandom is a mutex-guarded math/rand source satisfying Random,
// in the same style as the teacher's room_codes.go (which calls
// math/rand.Intn directly); guarded so one instance can be shared by
// many goroutines. The server does not construct one: lobbyregistry
// uses its own math/rand-backed source.
type SystemRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSystemRandom(seed int64) *SystemRandom {
	return &SystemRandom{rnd: rand.New(rand.NewSource(seed))}
}

func (r *SystemRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}
