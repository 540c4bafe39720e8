// Package sysclock provides the production Clock and Rng port
// implementations. Tests inject their own fakes instead of these.
package sysclock

import (
	"math/rand"
	"sync"
	"time"
)

// Real implements ports.Clock using the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// MathRand implements ports.Rng using its own seeded math/rand generator,
// guarded by a mutex for goroutine safety.
type MathRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewMathRand seeds a generator. Production code seeds from time; tests
// construct their own fixed-seed or scripted Rng fake instead.
func NewMathRand(seed int64) *MathRand {
	return &MathRand{r: rand.New(rand.NewSource(seed))}
}

func (m *MathRand) Float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.r.Float64()
}

func (m *MathRand) Intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.r.Intn(n)
}
