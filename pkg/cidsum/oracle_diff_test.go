package cidsum

import (
	"bytes"
	"context"
	"testing"

	"github.com/agenthands/cidsum/internal/testkit"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/oracle"
)

// TestComputeCID_MatchesIPFS compares against a local ipfs binary. Only the
// single-chunk sizes are required to agree; multi-chunk roots are logged.
func TestComputeCID_MatchesIPFS(t *testing.T) {
	o := oracle.NewIPFS("")
	if !o.Available() {
		t.Skip("ipfs not found on PATH")
	}
	if testing.Short() {
		t.Skip("skipping oracle comparison in short mode")
	}

	ctx := context.Background()
	r := testkit.RNG(99)
	sizes := []int{0, 1, 11, 4096, core.DefaultChunkSize - 1, core.DefaultChunkSize, core.DefaultChunkSize + 1}

	for _, n := range sizes {
		data := testkit.RandomBytes(r, n)
		for _, version := range []int{core.CIDv0, core.CIDv1} {
			got, err := SumBytes(ctx, data, version)
			if err != nil {
				t.Fatalf("n=%d v%d: %v", n, version, err)
			}
			want, err := o.CID(ctx, bytes.NewReader(data), version)
			if err != nil {
				t.Fatalf("n=%d v%d: oracle: %v", n, version, err)
			}
			if got == want {
				continue
			}
			if n > core.DefaultChunkSize {
				t.Logf("n=%d v%d: root differs from ipfs (%s vs %s)", n, version, got, want)
				continue
			}
			t.Errorf("n=%d v%d: got %s, ipfs says %s", n, version, got, want)
		}
	}
}
