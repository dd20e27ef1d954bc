// Package oracle asks an external IPFS implementation for the CID of a
// stream so computed identifiers can be cross-checked.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/agenthands/cidsum/pkg/core"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "ipfs"

// ErrUnavailable is returned when the oracle binary cannot be found.
var ErrUnavailable = errors.New("cidsum: oracle unavailable")

// Oracle returns the reference CID for everything readable from r.
type Oracle interface {
	CID(ctx context.Context, r io.Reader, version int) (string, error)
}

// IPFS shells out to "ipfs add --only-hash".
type IPFS struct {
	Binary string
	Args   []string // replaces the default add arguments when set
}

// NewIPFS returns an oracle running binary, or DefaultBinary when empty.
func NewIPFS(binary string) *IPFS {
	if binary == "" {
		binary = DefaultBinary
	}
	return &IPFS{Binary: binary}
}

// FromConfig builds the oracle described by cfg.
func FromConfig(cfg core.OracleConfig) *IPFS {
	o := NewIPFS(cfg.Binary)
	o.Args = cfg.Args
	return o
}

// Available reports whether the binary resolves.
func (o *IPFS) Available() bool {
	_, err := exec.LookPath(o.Binary)
	return err == nil
}

func (o *IPFS) args(version int) []string {
	args := o.Args
	if len(args) == 0 {
		args = []string{"add", "--only-hash", "-Q"}
	}
	args = append([]string(nil), args...)
	if version == core.CIDv1 {
		// cid-version 1 implies raw leaves; keep leaves as UnixFS nodes.
		args = append(args, "--cid-version", "1", "--raw-leaves=false")
	}
	return args
}

func (o *IPFS) CID(ctx context.Context, r io.Reader, version int) (string, error) {
	if version != core.CIDv0 && version != core.CIDv1 {
		return "", fmt.Errorf("%w: unsupported cid version %d", core.ErrInvalidArgument, version)
	}
	path, err := exec.LookPath(o.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, o.args(version)...)
	cmd.Stdin = r
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v: %s", core.ErrIO, o.Binary, err, strings.TrimSpace(stderr.String()))
	}

	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %s printed no cid", core.ErrCorrupt, o.Binary)
	}
	return fields[len(fields)-1], nil
}
