package testkit

import (
	"bytes"
	"math/rand"
	"time"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	// Read is deprecated in newer Go, but for testkit math/rand.Read or loop is fine.
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// CompressibleBytes generates a slice of highly compressible bytes of the given length.
func CompressibleBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	pattern := []byte("highly compressible repeating pattern ")
	pLen := len(pattern)
	for i := 0; i < length; i++ {
		b[i] = pattern[i%pLen]
	}

	// Sprinkle a tiny bit of randomness to avoid being 100% uniform if desired
	for i := 0; i < length/1024; i++ {
		b[r.Intn(length)] = byte(r.Intn(256))
	}

	return b
}

// Permute returns a copy of base with its bytes shuffled. The result is
// guaranteed to differ from base whenever base holds two distinct bytes.
func Permute(r *rand.Rand, base []byte) []byte {
	out := make([]byte, len(base))
	copy(out, base)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if bytes.Equal(out, base) {
		for i := 1; i < len(out); i++ {
			if out[i] != out[0] {
				out[0], out[i] = out[i], out[0]
				break
			}
		}
	}
	return out
}
