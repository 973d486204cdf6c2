// Package sampler implements the distribution sampler (component A):
// it draws inter-arrival delays from parameterized probability
// distributions or from token histograms, and applies token-removal
// policies as cells are observed.
//
// The sampler is pure of side effects apart from consuming randomness,
// and that randomness is always injected — never read from a package
// global — so tests can reproduce exact delay sequences (spec §9, the
// scenarios in spec §8 all assume this), modeled on the chaos-test
// harness's seeded *rand.Rand convention elsewhere in this stack.
package sampler

import "math/rand"

// Sampler draws delays using an injected random source.
type Sampler struct {
	rng *rand.Rand
}

// New creates a Sampler backed by rng. Pass rand.New(rand.NewSource(seed))
// for deterministic tests.
func New(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}
