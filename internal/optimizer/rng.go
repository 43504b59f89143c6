package optimizer

import "math/rand/v2"

// defaultSeed is used when callers pass seed 0
const defaultSeed uint64 = 1

// NewRand returns a deterministic PCG stream for seed. Seed 0 maps to a fixed
// default so an unset seed is still reproducible.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewPCG(seed, mix(seed)))
}

// DeriveSeed mixes a parent seed with a stream number so parallel restarts
// draw from decorrelated streams.
func DeriveSeed(parent uint64, stream uint64) uint64 {
	return mix(parent ^ (stream + 0x9e3779b97f4a7c15))
}

// mix is the SplitMix64 finalizer
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
