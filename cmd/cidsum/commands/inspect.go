package commands

import (
	"fmt"
	"strings"

	"github.com/agenthands/cidsum/pkg/carexport"
	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.car>",
		Short: "List the roots and decoded blocks of a CAR file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := carexport.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range sum.Roots {
				fmt.Fprintf(out, "root %s\n", cidString(r))
			}

			var bad int
			for _, b := range sum.Blocks {
				status := "ok"
				if !b.Valid {
					status = "MISMATCH"
					bad++
				}
				fields := []string{
					fmt.Sprintf("type=%s", b.Type),
					fmt.Sprintf("size=%d", b.Size),
					fmt.Sprintf("data=%d", b.DataLen),
					fmt.Sprintf("links=%d", len(b.Links)),
				}
				if b.Filesize != nil {
					fields = append(fields, fmt.Sprintf("filesize=%d", *b.Filesize))
				}
				fmt.Fprintf(out, "%s  %s  %s\n", cidString(b.CID), strings.Join(fields, " "), status)
			}
			a.logger.Debug("inspected car", "path", args[0], "blocks", len(sum.Blocks))

			if bad > 0 {
				return fmt.Errorf("%w: %d of %d blocks do not match their CID", core.ErrCorrupt, bad, len(sum.Blocks))
			}
			return nil
		},
	}
}

// cidString prints v1 CIDs in base32 as the sum command does.
func cidString(c cid.Cid) string {
	s, err := cidutil.String(c)
	if err != nil {
		return c.String()
	}
	return s
}
