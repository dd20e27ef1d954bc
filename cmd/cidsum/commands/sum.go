package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/agenthands/cidsum/pkg/cache"
	"github.com/agenthands/cidsum/pkg/carexport"
	"github.com/agenthands/cidsum/pkg/cidsum"
	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/manifest"
	"github.com/agenthands/cidsum/pkg/oracle"
	"github.com/agenthands/cidsum/pkg/source"
	"github.com/spf13/cobra"
)

const stdinName = "-"

// summer holds the per-invocation collaborators of the sum command.
type summer struct {
	*app
	tr     source.Transform
	cache  cache.Cache   // nil when disabled
	oracle oracle.Oracle // nil unless --check
}

func (a *app) runSum(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{stdinName}
	}
	if a.cfg.CAR.Path != "" && len(args) > 1 {
		return fmt.Errorf("%w: --car takes exactly one input", core.ErrInvalidArgument)
	}

	tr, err := source.ForName(a.cfg.Source.Decompress)
	if err != nil {
		return err
	}
	s := &summer{app: a, tr: tr}

	if a.cfg.Cache.Dir != "" {
		c, err := cache.Open(a.cfg.Cache.Dir)
		if err != nil {
			return err
		}
		defer c.Close()
		s.cache = c
	}
	if a.cfg.Oracle.Check {
		s.oracle = oracle.FromConfig(a.cfg.Oracle)
	}

	ctx := cmd.Context()
	for _, name := range args {
		id, err := s.sum(ctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", id, name)
	}
	return nil
}

func (s *summer) sum(ctx context.Context, name string) (string, error) {
	stdin := name == stdinName

	// Cached manifests describe the raw file, so they are bypassed when a
	// transform rewrites it or when the blocks themselves are wanted.
	useCache := s.cache != nil && !stdin && s.cfg.CAR.Path == "" && s.tr.Name() == "none"

	var stamp cache.Stamp
	if useCache {
		var err error
		stamp, err = cache.StampFor(name, s.cfg.CIDVersion)
		if err != nil {
			return "", err
		}
		m, ok, err := s.cache.Get(ctx, stamp)
		if err != nil {
			return "", err
		}
		if ok {
			root, err := m.RootCID()
			if err != nil {
				return "", err
			}
			id, err := cidutil.String(root)
			if err != nil {
				return "", err
			}
			s.logger.Debug("cache hit", "path", stamp.Path, "cid", id)
			return id, s.check(ctx, name, nil, id)
		}
	}

	var (
		rc  io.ReadCloser
		err error
	)
	if stdin {
		rc, err = source.Reader(s.in, s.tr)
	} else {
		rc, err = source.File(name, s.tr)
	}
	if err != nil {
		return "", err
	}
	defer rc.Close()

	// stdin cannot be replayed for the oracle; keep a copy.
	var r io.Reader = rc
	var seen *bytes.Buffer
	if stdin && s.oracle != nil {
		seen = new(bytes.Buffer)
		r = io.TeeReader(rc, seen)
	}

	opts := cidsum.Options{Version: s.cfg.CIDVersion, Logger: s.logger}
	var car *carexport.Writer
	if s.cfg.CAR.Path != "" {
		car, err = carexport.NewWriter(s.cfg.CAR.Path, s.cfg.CIDVersion)
		if err != nil {
			return "", err
		}
		opts.Sink = car
	}

	p, err := cidsum.New(opts)
	if err != nil {
		return "", err
	}
	res, err := p.Sum(ctx, r)
	if err != nil {
		if car != nil {
			_ = car.Abort()
		}
		return "", err
	}

	if car != nil {
		if err := car.Finalize(res.CID); err != nil {
			_ = car.Abort()
			return "", err
		}
		s.logger.Info("wrote car", "path", car.Path(), "blocks", car.Blocks())
	}

	if useCache {
		m := manifest.New(res.CID, res.Length, res.NodeSize, res.Chunks)
		if err := s.cache.Put(ctx, stamp, m); err != nil {
			return "", err
		}
	}

	id := res.String()
	s.logger.Debug("computed", "input", name, "cid", id, "bytes", res.Length, "chunks", len(res.Chunks))

	var replay []byte
	if seen != nil {
		replay = seen.Bytes()
	}
	return id, s.check(ctx, name, replay, id)
}

// check asks the oracle for the CID of the same decoded input and fails on
// mismatch. replay holds the input when it was read from stdin.
func (s *summer) check(ctx context.Context, name string, replay []byte, got string) error {
	if s.oracle == nil {
		return nil
	}

	var r io.Reader
	if name == stdinName {
		r = bytes.NewReader(replay)
	} else {
		rc, err := source.File(name, s.tr)
		if err != nil {
			return err
		}
		defer rc.Close()
		r = rc
	}

	want, err := s.oracle.CID(ctx, r, s.cfg.CIDVersion)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("%w: computed %s, oracle reports %s", core.ErrCorrupt, got, want)
	}
	s.logger.Debug("oracle agrees", "input", name, "cid", got)
	return nil
}
