package encoder

import (
	"flag"
	"strings"

	"github.com/pkg/errors"
	"github.com/zachfi/zkit/pkg/util"

	"github.com/satindergrewal/shuffleradio/internal/audio"
)

// Format names an output stream format.
type Format string

const (
	MP3     Format = "mp3"
	OggOpus Format = "ogg"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "mp3", "mpeg":
		return MP3, nil
	case "ogg", "opus":
		return OggOpus, nil
	}
	return "", errors.Wrap(ErrUnknownFormat, s)
}

// ContentType is the media type served for the format.
func (f Format) ContentType() string {
	switch f {
	case OggOpus:
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// SampleRate is the PCM rate the format's session takes as input.
func (f Format) SampleRate() int {
	if f == OggOpus {
		return OpusSampleRate
	}
	return audio.SampleRate
}

const (
	defaultBitrate = 128 // kbps
	defaultQuality = 2   // LAME: 0 best, 9 fastest
)

type Config struct {
	Bitrate int `yaml:"bitrate,omitempty"` // kbps
	Quality int `yaml:"quality,omitempty"` // LAME algorithm quality
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.Bitrate, util.PrefixConfig(prefix, "bitrate"), defaultBitrate, "Output bitrate in kbps.")
	f.IntVar(&cfg.Quality, util.PrefixConfig(prefix, "quality"), defaultQuality,
		"LAME algorithm quality, 0 (best, slowest) to 9 (worst, fastest).")
}

// DefaultConfig returns the flag defaults, for callers without a FlagSet.
func DefaultConfig() Config {
	return Config{Bitrate: defaultBitrate, Quality: defaultQuality}
}
