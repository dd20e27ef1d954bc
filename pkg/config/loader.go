// Package config resolves core.Config from defaults, an optional YAML file,
// CIDSUM_* environment variables and bound command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agenthands/cidsum/pkg/core"
	"github.com/spf13/viper"
)

// Keys shared by the YAML file, the environment and flag bindings.
const (
	KeyCIDVersion   = "cid_version"
	KeyCARPath      = "car.path"
	KeyCacheDir     = "cache.dir"
	KeyDecompress   = "source.decompress"
	KeyOracleBinary = "oracle.binary"
	KeyOracleArgs   = "oracle.args"
	KeyOracleCheck  = "oracle.check"
	KeyDebug        = "debug"
)

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// CIDSUM_CACHE_DIR -> cache.dir
	v.SetEnvPrefix("CIDSUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyCIDVersion, core.CIDv0)
	v.SetDefault(KeyCARPath, "")
	v.SetDefault(KeyCacheDir, "")
	v.SetDefault(KeyDecompress, "none")
	v.SetDefault(KeyOracleBinary, "ipfs")
	v.SetDefault(KeyOracleArgs, []string{})
	v.SetDefault(KeyOracleCheck, false)
	v.SetDefault(KeyDebug, false)
}

// Load reads cfgFile, or the first of ./cidsum.yaml and
// $HOME/.cidsum/config.yaml that exists, into v and returns the resolved
// configuration. A missing default file is not an error; a missing
// explicit one is.
func Load(v *viper.Viper, cfgFile string) (core.Config, error) {
	if cfgFile == "" {
		cfgFile = findDefault()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return core.Config{}, fmt.Errorf("%w: config file %s: %v", core.ErrInvalidArgument, cfgFile, err)
		}
	}

	cfg := core.Config{
		CIDVersion: v.GetInt(KeyCIDVersion),
		CAR:        core.CARConfig{Path: v.GetString(KeyCARPath)},
		Cache:      core.CacheConfig{Dir: v.GetString(KeyCacheDir)},
		Source:     core.SourceConfig{Decompress: v.GetString(KeyDecompress)},
		Oracle: core.OracleConfig{
			Binary: v.GetString(KeyOracleBinary),
			Args:   v.GetStringSlice(KeyOracleArgs),
			Check:  v.GetBool(KeyOracleCheck),
		},
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

func findDefault() string {
	candidates := []string{"cidsum.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".cidsum", "config.yaml"))
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
