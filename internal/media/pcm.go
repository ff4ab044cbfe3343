package media

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// PCMCodecs decodes interleaved little-endian PCM.
type PCMCodecs struct{}

func (PCMCodecs) NewDecoder(params CodecParams) (Decoder, error) {
	if params.Channels < 1 {
		return nil, errors.Wrapf(ErrUnsupportedCodec, "%d channels", params.Channels)
	}
	var width int
	switch params.Codec {
	case CodecPCMS16LE:
		width = 2
	case CodecPCMF32LE:
		width = 4
	default:
		return nil, errors.Wrap(ErrUnsupportedCodec, params.Codec)
	}
	return &pcmDecoder{params: params, width: width}, nil
}

type pcmDecoder struct {
	params CodecParams
	width  int
}

func (d *pcmDecoder) Decode(p Packet) (Buffer, error) {
	frameSize := d.width * d.params.Channels
	if len(p.Data)%frameSize != 0 {
		return Buffer{}, errors.Errorf("%s packet of %d bytes is not a whole number of %d byte frames",
			d.params.Codec, len(p.Data), frameSize)
	}

	frames := len(p.Data) / frameSize
	out := Buffer{SampleRate: d.params.SampleRate, Channels: make([][]float64, d.params.Channels)}
	for ch := range out.Channels {
		out.Channels[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.params.Channels; ch++ {
			off := i*frameSize + ch*d.width
			out.Channels[ch][i] = d.sample(p.Data[off : off+d.width])
		}
	}
	return out, nil
}

func (d *pcmDecoder) sample(b []byte) float64 {
	if d.width == 2 {
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func (d *pcmDecoder) Close() error { return nil }
