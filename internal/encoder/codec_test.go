package encoder

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/gopxl/beep/v2/mp3"

	"github.com/satindergrewal/shuffleradio/internal/audio"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

// tone returns one second of a 440 Hz canonical sine in 100ms chunks.
func tone() pipeline.Stream[audio.Chunk] {
	chunks := make([]audio.Chunk, 10)
	for i := range chunks {
		c := chunk(audio.SampleRate / 10)
		for j := range c.Left {
			n := i*len(c.Left) + j
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(n)/audio.SampleRate))
			c.Left[j], c.Right[j] = v, v
		}
		chunks[i] = c
	}
	return pipeline.FromSlice(chunks...)
}

func encodeAll(t *testing.T, format Format) []Bytes {
	t.Helper()
	e, err := New(format, DefaultConfig(), tone(), discard())
	if err != nil {
		t.Fatalf("New(%s): %v", format, err)
	}
	out, err := pipeline.Collect(context.Background(), pipeline.Stream[Bytes](e))
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	for i, b := range out {
		if len(b) == 0 {
			t.Fatalf("chunk %d is empty", i)
		}
	}
	return out
}

func TestMP3SessionDecodesToOneSecond(t *testing.T) {
	var out []byte
	for _, b := range encodeAll(t, MP3) {
		out = append(out, b...)
	}

	s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(out)))
	if err != nil {
		t.Fatalf("mp3.Decode: %v", err)
	}
	defer s.Close()
	if int(format.SampleRate) != audio.SampleRate || format.NumChannels != audio.Channels {
		t.Errorf("format = %d Hz, %d channels", format.SampleRate, format.NumChannels)
	}

	frames := 0
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		frames += n
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// LAME adds encoder delay and pads to whole frames.
	secs := float64(frames) / audio.SampleRate
	if secs < 0.95 || secs > 1.15 {
		t.Errorf("decoded %d frames (%.3fs), want about one second", frames, secs)
	}
}

func TestOggOpusSessionPagesOneSecond(t *testing.T) {
	var out []byte
	for _, b := range encodeAll(t, OggOpus) {
		out = append(out, b...)
	}
	if !bytes.Contains(out, []byte("OpusHead")) || !bytes.Contains(out, []byte("OpusTags")) {
		t.Fatal("missing Opus headers")
	}

	granules := oggPages(t, out)
	if len(granules) < 3 {
		t.Fatalf("got %d pages, want headers plus audio", len(granules))
	}
	if granules[0] != 0 || granules[1] != 0 {
		t.Errorf("header granules = %d, %d, want 0", granules[0], granules[1])
	}
	// One 20ms packet per page: fifty for one second, a fifty-first when
	// rounding leaves a padded partial frame.
	if audioPages := len(granules) - 2; audioPages < 50 || audioPages > 51 {
		t.Errorf("got %d audio pages, want 50", audioPages)
	}
	last := granules[len(granules)-1]
	if want := uint64(1 + 49*OpusFrameSize); last < want || last > want+OpusFrameSize {
		t.Errorf("final granule = %d, want about %d", last, want)
	}
}
