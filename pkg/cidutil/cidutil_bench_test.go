package cidutil

import (
	"fmt"
	"testing"

	"github.com/agenthands/cidsum/internal/testkit"
	"github.com/agenthands/cidsum/pkg/core"
)

func BenchmarkNodeCID(b *testing.B) {
	builder := NewBuilder()
	rng := testkit.RNG(1)

	sizes := []int{4 * 1024, 64 * 1024, core.DefaultChunkSize}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size_%d", size), func(b *testing.B) {
			data := testkit.RandomBytes(rng, size)

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				_, _ = builder.NodeCID(data, core.CIDv0)
			}
		})
	}
}
