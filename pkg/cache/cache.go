package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/manifest"
	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

var (
	PrefixFile = []byte("f2m:") // file stamp -> entry
	PrefixRoot = []byte("r2m:") // root CID -> manifest
)

// Stamp identifies one version of a file on disk by size and modification
// time. A rewrite that keeps the size and lands within the filesystem's
// mtime granularity is indistinguishable from the cached version and will
// be served its old CID; touch the file or run without a cache when that
// matters.
type Stamp struct {
	Path       string // absolute
	Size       int64
	ModTime    time.Time
	CIDVersion int
}

// StampFor stats path and returns its current stamp.
func StampFor(path string, version int) (Stamp, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Stamp{}, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Stamp{}, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	return Stamp{Path: abs, Size: fi.Size(), ModTime: fi.ModTime(), CIDVersion: version}, nil
}

type entry struct {
	Size     int64  `cbor:"size"`
	ModTime  int64  `cbor:"mtime_ns"`
	Manifest []byte `cbor:"manifest"`
}

// Cache maps file stamps to previously computed manifests.
type Cache interface {
	Get(ctx context.Context, st Stamp) (*manifest.ManifestV1, bool, error)
	Put(ctx context.Context, st Stamp, m *manifest.ManifestV1) error
	Lookup(ctx context.Context, root cid.Cid) (*manifest.ManifestV1, bool, error)
	Prune(ctx context.Context) (int, error)
	Close() error
}

type pebbleCache struct {
	db        *pebble.DB
	manifests manifest.Codec
	encMode   cbor.EncMode
}

// Open opens a Pebble-based cache in the specified directory.
func Open(dir string) (Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	em, _ := cbor.CanonicalEncOptions().EncMode()
	return &pebbleCache{db: db, manifests: manifest.NewCodec(), encMode: em}, nil
}

func (c *pebbleCache) Close() error {
	return c.db.Close()
}

// Get returns the manifest stored for st. An entry whose size or mtime no
// longer matches is reported as a miss; content is not re-read, see Stamp.
func (c *pebbleCache) Get(ctx context.Context, st Stamp) (*manifest.ManifestV1, bool, error) {
	val, ok, err := c.get(fileKey(st))
	if err != nil || !ok {
		return nil, false, err
	}

	var e entry
	if err := cbor.Unmarshal(val, &e); err != nil {
		return nil, false, fmt.Errorf("%w: cache entry for %s: %v", core.ErrCorrupt, st.Path, err)
	}
	if e.Size != st.Size || e.ModTime != st.ModTime.UnixNano() {
		return nil, false, nil
	}

	m, err := c.manifests.Decode(e.Manifest)
	if err != nil {
		return nil, false, err
	}
	if m.CIDVersion != uint64(st.CIDVersion) {
		return nil, false, nil
	}
	return m, true, nil
}

func (c *pebbleCache) Put(ctx context.Context, st Stamp, m *manifest.ManifestV1) error {
	mBytes, err := c.manifests.Encode(m)
	if err != nil {
		return err
	}
	val, err := c.encMode.Marshal(entry{Size: st.Size, ModTime: st.ModTime.UnixNano(), Manifest: mBytes})
	if err != nil {
		return fmt.Errorf("%w: cache entry: %v", core.ErrSerialization, err)
	}

	batch := c.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(fileKey(st), val, nil); err != nil {
		return err
	}
	if err := batch.Set(rootKey(m.Root), mBytes, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Lookup finds a manifest by the CID it produced, whichever file it came from.
func (c *pebbleCache) Lookup(ctx context.Context, root cid.Cid) (*manifest.ManifestV1, bool, error) {
	val, ok, err := c.get(rootKey(root.Bytes()))
	if err != nil || !ok {
		return nil, false, err
	}
	m, err := c.manifests.Decode(val)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Prune drops file entries whose file is gone or has changed. Root entries
// are kept; they stay valid for as long as the content exists anywhere.
func (c *pebbleCache) Prune(ctx context.Context) (int, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: PrefixFile,
		UpperBound: incrementByte(PrefixFile),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := c.db.NewBatch()
	defer batch.Close()

	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		key := iter.Key()
		if len(key) < len(PrefixFile)+1 {
			continue
		}
		path := string(key[len(PrefixFile)+1:])

		var e entry
		stale := cbor.Unmarshal(iter.Value(), &e) != nil
		if !stale {
			fi, err := os.Stat(path)
			stale = err != nil || fi.Size() != e.Size || fi.ModTime().UnixNano() != e.ModTime
		}
		if !stale {
			continue
		}

		if err := batch.Delete(append([]byte(nil), key...), nil); err != nil {
			return 0, err
		}
		removed++
	}

	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return removed, nil
}

func (c *pebbleCache) get(key []byte) ([]byte, bool, error) {
	val, closer, err := c.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()

	res := make([]byte, len(val))
	copy(res, val)
	return res, true, nil
}

// fileKey encodes f2m:<version byte><absolute path>.
func fileKey(st Stamp) []byte {
	k := make([]byte, 0, len(PrefixFile)+1+len(st.Path))
	k = append(k, PrefixFile...)
	k = append(k, byte(st.CIDVersion))
	return append(k, st.Path...)
}

func rootKey(root []byte) []byte {
	k := make([]byte, 0, len(PrefixRoot)+len(root))
	k = append(k, PrefixRoot...)
	return append(k, root...)
}

func incrementByte(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			return res
		}
	}
	return nil
}
