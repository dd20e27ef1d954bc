package commands

import (
	"fmt"

	"github.com/agenthands/cidsum/pkg/cache"
	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the file -> CID cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "prune",
			Short: "Drop entries for files that changed or disappeared",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := a.openCache()
				if err != nil {
					return err
				}
				defer c.Close()

				n, err := c.Prune(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <cid>",
			Short: "Print the chunk manifest recorded for a CID",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				root, err := cidutil.Parse(args[0])
				if err != nil {
					return err
				}
				c, err := a.openCache()
				if err != nil {
					return err
				}
				defer c.Close()

				m, ok, err := c.Lookup(cmd.Context(), root)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s is not cached", core.ErrNotFound, args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "cid %s\nlength %d\nnode %d\nchunks %d\n", args[0], m.Length, m.NodeSize, len(m.Chunks))
				for i, ch := range m.Chunks {
					c, err := ch.Cid()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%4d  %s  size=%d len=%d\n", i, cidString(c), ch.Size, ch.Len)
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *app) openCache() (cache.Cache, error) {
	if a.cfg.Cache.Dir == "" {
		return nil, fmt.Errorf("%w: no cache directory configured (--cache-dir or CIDSUM_CACHE_DIR)", core.ErrInvalidArgument)
	}
	return cache.Open(a.cfg.Cache.Dir)
}
