package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/agenthands/cidsum/pkg/config"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    core.Config
	logger *slog.Logger
	in     io.Reader
}

// NewRootCmd builds the cidsum command tree. Each call returns an
// independent tree with its own configuration.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "cidsum [file...]",
		Short: "Compute IPFS-compatible CIDs without running a node",
		Long: `cidsum prints the CID an IPFS node would assign to each input under its
default settings (256 KiB chunks, UnixFS file leaves, dag-pb). With no
file, or when file is -, standard input is read.`,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runSum,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./cidsum.yaml or $HOME/.cidsum/config.yaml)")
	pf.Bool("debug", false, "log pipeline state transitions to stderr")
	pf.String("cache-dir", "", "directory of the file -> CID cache (disabled when empty)")

	f := root.Flags()
	f.Int("cid-version", core.CIDv0, "CID version to print (0 or 1)")
	f.String("car", "", "also export the DAG of a single input to this CARv2 file")
	f.String("decompress", "none", "decode inputs before hashing (none, zstd)")
	f.Bool("check", false, "validation aid: also run a local ipfs binary (ipfs add --only-hash) and fail on mismatch")

	bind(a.v, config.KeyDebug, pf.Lookup("debug"))
	bind(a.v, config.KeyCacheDir, pf.Lookup("cache-dir"))
	bind(a.v, config.KeyCIDVersion, f.Lookup("cid-version"))
	bind(a.v, config.KeyCARPath, f.Lookup("car"))
	bind(a.v, config.KeyDecompress, f.Lookup("decompress"))
	bind(a.v, config.KeyOracleCheck, f.Lookup("check"))

	root.AddCommand(newInspectCmd(a), newCacheCmd(a))
	return root
}

func bind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.in = cmd.InOrStdin()

	level := slog.LevelInfo
	if a.v.GetBool(config.KeyDebug) {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", "path", used)
	}
	return nil
}
