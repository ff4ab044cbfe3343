package media

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// writeWAV renders frames of a constant stereo value into a 16-bit WAV file.
func writeWAV(t *testing.T, path string, rate, channels, frames int, value float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	remaining := frames
	s := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if remaining == 0 {
			return 0, false
		}
		n := min(len(samples), remaining)
		for i := 0; i < n; i++ {
			samples[i] = [2]float64{value, -value}
		}
		remaining -= n
		return n, true
	})
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: channels, Precision: 2}
	if err := wav.Encode(f, s, format); err != nil {
		t.Fatalf("wav.Encode: %v", err)
	}
}

// --- PCMCodecs ---

func TestPCMS16Decode(t *testing.T) {
	dec, err := PCMCodecs{}.NewDecoder(CodecParams{Codec: CodecPCMS16LE, SampleRate: 44100, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], uint16(16384))
	binary.LittleEndian.PutUint16(data[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint16(data[4:], 0)
	binary.LittleEndian.PutUint16(data[6:], uint16(32767))

	buf, err := dec.Decode(Packet{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if buf.Frames() != 2 || len(buf.Channels) != 2 {
		t.Fatalf("got %d frames x %d channels, want 2x2", buf.Frames(), len(buf.Channels))
	}
	if buf.Channels[0][0] != 0.5 {
		t.Errorf("L[0] = %v, want 0.5", buf.Channels[0][0])
	}
	if buf.Channels[1][0] != -1 {
		t.Errorf("R[0] = %v, want -1", buf.Channels[1][0])
	}
	if buf.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", buf.SampleRate)
	}
}

func TestPCMF32Decode(t *testing.T) {
	dec, err := PCMCodecs{}.NewDecoder(CodecParams{Codec: CodecPCMF32LE, SampleRate: 48000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 12)
	for i, v := range []float32{0.25, -0.5, 1} {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	buf, err := dec.Decode(Packet{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.25, -0.5, 1}
	for i, w := range want {
		if buf.Channels[0][i] != w {
			t.Errorf("sample %d = %v, want %v", i, buf.Channels[0][i], w)
		}
	}
}

func TestPCMDecodeRejectsPartialFrames(t *testing.T) {
	dec, _ := PCMCodecs{}.NewDecoder(CodecParams{Codec: CodecPCMS16LE, SampleRate: 44100, Channels: 2})
	if _, err := dec.Decode(Packet{Data: make([]byte, 6)}); err == nil {
		t.Error("expected error for a packet that is not a whole number of frames")
	}
}

func TestPCMUnsupportedCodec(t *testing.T) {
	tests := []CodecParams{
		{Codec: "aac", SampleRate: 44100, Channels: 2},
		{Codec: CodecPCMS16LE, SampleRate: 44100, Channels: 0},
	}
	for _, p := range tests {
		if _, err := (PCMCodecs{}).NewDecoder(p); !errors.Is(err, ErrUnsupportedCodec) {
			t.Errorf("NewDecoder(%+v) = %v, want ErrUnsupportedCodec", p, err)
		}
	}
}

// --- BeepProber ---

func TestProbeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 22050, 2, 3000, 0.5)

	f, err := FileSource{}.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := BeepProber{}.Probe(f, ".wav")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	defer d.Close()

	tracks := d.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	params := tracks[0].Params
	if params.SampleRate != 22050 || params.Channels != 2 || params.Codec != CodecPCMF32LE {
		t.Errorf("params = %+v", params)
	}

	dec, err := PCMCodecs{}.NewDecoder(params)
	if err != nil {
		t.Fatal(err)
	}
	frames := 0
	for {
		p, err := d.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("NextPacket: %v", err)
		}
		buf, err := dec.Decode(p)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for i := 0; i < buf.Frames(); i++ {
			if math.Abs(buf.Channels[0][i]-0.5) > 0.001 || math.Abs(buf.Channels[1][i]+0.5) > 0.001 {
				t.Fatalf("frame %d = (%v, %v), want (0.5, -0.5)", frames+i, buf.Channels[0][i], buf.Channels[1][i])
			}
		}
		frames += buf.Frames()
	}
	if frames != 3000 {
		t.Errorf("decoded %d frames, want 3000", frames)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestProbeUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := FileSource{}.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := (BeepProber{}).Probe(f, ".txt"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Probe = %v, want ErrUnknownFormat", err)
	}
}

func TestProbeCorruptWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("RIFF\x00\x00\x00\x00WAVEjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := FileSource{}.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := (BeepProber{}).Probe(f, ".wav"); err == nil {
		t.Error("expected probing a truncated WAV header to fail")
	}
}

func TestFromExtension(t *testing.T) {
	tests := []struct {
		hint string
		want container
	}{
		{".mp3", mp3Container},
		{".MP3", mp3Container},
		{"flac", flacContainer},
		{".ogg", oggContainer},
		{".wav", wavContainer},
		{".txt", unknown},
		{"", unknown},
	}
	for _, tt := range tests {
		if got := fromExtension(tt.hint); got != tt.want {
			t.Errorf("fromExtension(%q) = %v, want %v", tt.hint, got, tt.want)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := (FileSource{}).Open(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("expected error opening a missing file")
	}
}
