// Package rng abstracts the randomness consumed by spawning, item
// generation, damage rolls, and the bot policy, so tests can substitute
// deterministic sequences.
package rng

// Source produces the two random shapes the game needs.
//
// Invariant: Intn(n) is uniform in [0, n); Float64 is uniform in [0, 1).
type Source interface {
	// Intn returns a uniform int in [0, n). Panics if n <= 0.
	Intn(n int) int
	// Float64 returns a uniform float64 in [0, 1).
	Float64() float64
}
