package carexport_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agenthands/cidsum/internal/testkit"
	"github.com/agenthands/cidsum/pkg/carexport"
	"github.com/agenthands/cidsum/pkg/cidsum"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/pb"
)

func export(t *testing.T, data []byte, version int) (string, cidsum.Result) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.car")

	w, err := carexport.NewWriter(path, version)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	p, err := cidsum.New(cidsum.Options{Version: version, Sink: w})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Sum(context.Background(), bytes.NewReader(data))
	if err != nil {
		w.Abort()
		t.Fatalf("Sum failed: %v", err)
	}
	if err := w.Finalize(res.CID); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return path, res
}

func TestWriter_MultiChunk(t *testing.T) {
	ctx := context.Background()
	data := testkit.RandomBytes(testkit.RNG(21), 2*core.DefaultChunkSize+100)

	for _, version := range []int{0, 1} {
		path, res := export(t, data, version)

		sum, err := carexport.Inspect(ctx, path)
		if err != nil {
			t.Fatalf("v%d: Inspect failed: %v", version, err)
		}

		if len(sum.Roots) != 1 || !sum.Roots[0].Equals(res.CID) {
			t.Fatalf("v%d: roots %v, want [%s]", version, sum.Roots, res.CID)
		}
		if len(sum.Blocks) != 4 {
			t.Fatalf("v%d: expected 4 blocks, got %d", version, len(sum.Blocks))
		}

		var payload int
		for _, b := range sum.Blocks {
			if !b.Valid {
				t.Errorf("v%d: block %s does not match its CID", version, b.CID)
			}
			if b.Type != pb.DataFile {
				t.Errorf("v%d: block %s has type %s", version, b.CID, b.Type)
			}
			payload += b.DataLen
		}
		if payload != len(data) {
			t.Errorf("v%d: leaves carry %d bytes, want %d", version, payload, len(data))
		}

		root := sum.Blocks[len(sum.Blocks)-1]
		if !root.CID.Equals(res.CID) || len(root.Links) != 3 || len(root.Blocksizes) != 3 {
			t.Errorf("v%d: last block is not the root: %+v", version, root)
		}
	}
}

func TestWriter_DeduplicatesLeaves(t *testing.T) {
	data := make([]byte, 3*core.DefaultChunkSize)
	path, res := export(t, data, 0)

	sum, err := carexport.Inspect(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(res.Chunks))
	}
	// three identical leaves, one root
	if len(sum.Blocks) != 2 {
		t.Errorf("expected 2 distinct blocks, got %d", len(sum.Blocks))
	}
}

func TestWriter_SingleChunk(t *testing.T) {
	path, res := export(t, []byte{0}, 0)

	sum, err := carexport.Inspect(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Blocks) != 1 || !sum.Blocks[0].CID.Equals(res.CID) {
		t.Fatalf("expected only the leaf, got %+v", sum.Blocks)
	}
	if res.String() != "QmS9JArPwa55ePgDnyg6TzX24mYTS1b1vLqWNebyVotKxQ" {
		t.Errorf("unexpected root %s", res)
	}
}

func TestWriter_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.car")
	w, err := carexport.NewWriter(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	p, _ := cidsum.New(cidsum.Options{Version: 1})
	res, err := p.Sum(context.Background(), bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(res.CID); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for a root of the wrong version, got %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Errorf("Abort failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Abort after a failed Finalize must remove the car, stat: %v", err)
	}

	if _, err := carexport.NewWriter(path, 3); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for version 3, got %v", err)
	}

	if _, err := carexport.Inspect(context.Background(), filepath.Join(t.TempDir(), "missing.car")); !errors.Is(err, core.ErrIO) {
		t.Errorf("expected ErrIO for missing file, got %v", err)
	}
}
