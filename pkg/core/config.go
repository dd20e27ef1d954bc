package core

import "fmt"

type Config struct {
	CIDVersion int

	CAR    CARConfig
	Cache  CacheConfig
	Source SourceConfig
	Oracle OracleConfig
}

type CARConfig struct {
	Path string // empty disables export
}

type CacheConfig struct {
	Dir string // empty disables the cache
}

type SourceConfig struct {
	Decompress string // "", "none" or "zstd"
}

type OracleConfig struct {
	Binary string
	Args   []string // overrides the default "add --only-hash -Q"
	Check  bool
}

// Validate reports configuration values the pipeline cannot honor.
func (c Config) Validate() error {
	if c.CIDVersion != CIDv0 && c.CIDVersion != CIDv1 {
		return fmt.Errorf("%w: unsupported cid version %d", ErrInvalidArgument, c.CIDVersion)
	}
	switch c.Source.Decompress {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("%w: unsupported decompression %q", ErrInvalidArgument, c.Source.Decompress)
	}
	return nil
}
