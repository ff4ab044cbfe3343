package radio

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/satindergrewal/shuffleradio/internal/encoder"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

const (
	defaultDrainTimeout = 5 * time.Second
	burstFactor         = 10
	// containerOverhead is added to the derived byte rate for Ogg pages and
	// MP3 tags.
	containerOverhead = 2048
)

type Config struct {
	Format           string         `yaml:"format,omitempty"`
	Encoder          encoder.Config `yaml:"encoder,omitempty"`
	ByteRate         int            `yaml:"byte-rate,omitempty"`  // 0 derives it from the encoder bitrate
	ByteBurst        int            `yaml:"byte-burst,omitempty"` // 0 means ten seconds at byte-rate
	PacePCM          bool           `yaml:"pace-pcm"`             // pace decoded audio for HTTP listeners
	PacingSlack      time.Duration  `yaml:"pacing-slack,omitempty"`
	EmptyRetry       time.Duration  `yaml:"empty-retry,omitempty"`
	AbortOnReadError bool           `yaml:"abort-on-read-error,omitempty"`
	DrainTimeout     time.Duration  `yaml:"drain-timeout,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Format, util.PrefixConfig(prefix, "format"), string(encoder.MP3),
		"Stream format served on /stream: mp3 or ogg.")
	cfg.Encoder.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "encoder"), f)
	f.IntVar(&cfg.ByteRate, util.PrefixConfig(prefix, "byte-rate"), 0,
		"Sustained rate, in bytes per second, at which encoded audio is sent to each listener. Zero means one and a half times the encoder bitrate plus container overhead.")
	f.IntVar(&cfg.ByteBurst, util.PrefixConfig(prefix, "byte-burst"), 0,
		"Bytes a listener may receive back to back. Defaults to ten times byte-rate.")
	f.BoolVar(&cfg.PacePCM, util.PrefixConfig(prefix, "pace-pcm"), true,
		"Pace decoded audio to real time before encoding, in addition to byte pacing.")
	f.DurationVar(&cfg.PacingSlack, util.PrefixConfig(prefix, "pacing-slack"), pipeline.DefaultSlack,
		"How early the pacer wakes before its deadline.")
	f.DurationVar(&cfg.EmptyRetry, util.PrefixConfig(prefix, "empty-retry"), 0,
		"Poll interval while the catalog is empty. Zero ends the stream instead.")
	f.BoolVar(&cfg.AbortOnReadError, util.PrefixConfig(prefix, "abort-on-read-error"), false,
		"End the listener connection, not just the track, when a file cannot be read mid-track.")
	f.DurationVar(&cfg.DrainTimeout, util.PrefixConfig(prefix, "drain-timeout"), defaultDrainTimeout,
		"How long shutdown waits for listeners to disconnect.")
}

func (cfg Config) byteRate() int {
	if cfg.ByteRate > 0 {
		return cfg.ByteRate
	}
	return cfg.Encoder.Bitrate*1000/8*3/2 + containerOverhead
}

func (cfg Config) byteBurst() int {
	if cfg.ByteBurst > 0 {
		return cfg.ByteBurst
	}
	return cfg.byteRate() * burstFactor
}
