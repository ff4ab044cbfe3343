package catalog

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const defaultDebounce = time.Second

type Config struct {
	Dir         string        `yaml:"dir,omitempty"`
	Debounce    time.Duration `yaml:"debounce,omitempty"`     // quiet period before a batch of file events is applied
	FollowLinks bool          `yaml:"follow-links,omitempty"` // follow symlinks while scanning
	Watch       bool          `yaml:"watch,omitempty"`        // keep the catalog in sync with the directory
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), ".", "The directory holding the music files")
	f.DurationVar(&cfg.Debounce, util.PrefixConfig(prefix, "debounce"), defaultDebounce,
		"Quiet period after the last filesystem event before the catalog is updated.")
	f.BoolVar(&cfg.FollowLinks, util.PrefixConfig(prefix, "follow-links"), true, "Follow symlinks while scanning.")
	f.BoolVar(&cfg.Watch, util.PrefixConfig(prefix, "watch"), true, "Watch the directory for added and removed files.")
}
