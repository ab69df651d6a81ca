package audio

import (
	"math"
	"testing"
)

func TestResample_Identity(t *testing.T) {
	buf := SamplesToBytes([]int16{100, 200, 300, 400, 500})

	out, err := Resample(buf, 48000, 48000, 1)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}

	// Fast path must return the input slice itself, not a copy.
	if &out[0] != &buf[0] {
		t.Error("expected identity resample to return the input buffer by reference")
	}
}

func TestResample_Validation(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		source   int
		target   int
		channels int
		wantErr  error
	}{
		{"odd length", []byte{1, 2, 3}, 48000, 16000, 1, ErrInvalidFormat},
		{"empty", []byte{}, 48000, 16000, 1, ErrEmptyBuffer},
		{"nil", nil, 48000, 16000, 1, ErrEmptyBuffer},
		{"zero source rate", []byte{1, 2}, 0, 16000, 1, ErrInvalidRate},
		{"negative target rate", []byte{1, 2}, 48000, -1, 1, ErrInvalidRate},
		{"zero channels", []byte{1, 2}, 48000, 16000, 0, ErrInvalidChannels},
		{"too many channels", []byte{1, 2}, 48000, 16000, 3, ErrInvalidChannels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resample(tt.buf, tt.source, tt.target, tt.channels)
			if err != tt.wantErr {
				t.Errorf("Resample() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResample_OutputLength(t *testing.T) {
	// 20ms of audio at each source rate.
	targets := []int{8000, 16000, 22050, 44100, 48000}
	sources := []int{8000, 16000, 22050, 44100, 48000}

	for _, source := range sources {
		samples := make([]int16, source/50)
		for i := range samples {
			samples[i] = int16(math.Sin(float64(i)/10) * 10000)
		}
		buf := SamplesToBytes(samples)

		for _, target := range targets {
			out, err := Resample(buf, source, target, 1)
			if err != nil {
				t.Fatalf("Resample(%d -> %d) error: %v", source, target, err)
			}

			if len(out)%2 != 0 {
				t.Errorf("Resample(%d -> %d): odd output length %d", source, target, len(out))
			}

			want := int(math.Round(float64(len(samples)) * float64(target) / float64(source)))
			got := len(out) / 2
			if got < want-1 || got > want+1 {
				t.Errorf("Resample(%d -> %d): got %d samples, want %d±1", source, target, got, want)
			}
		}
	}
}

func TestStereoToMono_Averaging(t *testing.T) {
	// Two stereo frames that each average to zero.
	buf := SamplesToBytes([]int16{100, -100, 200, -200})

	out, err := Resample(buf, 16000, 16000, 2)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}

	mono := BytesToSamples(out)
	if len(mono) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(mono))
	}
	for i, s := range mono {
		if s != 0 {
			t.Errorf("sample %d: expected 0, got %d", i, s)
		}
	}
}

func TestStereoToMono_Rounding(t *testing.T) {
	tests := []struct {
		left, right int16
		want        int16
	}{
		{1, 2, 2},    // 1.5 rounds away from zero
		{-1, -2, -2}, // -1.5 rounds away from zero
		{3, 3, 3},
		{0, 1, 1},
		{0, -1, -1},
	}

	for _, tt := range tests {
		got := StereoToMono([]int16{tt.left, tt.right})
		if got[0] != tt.want {
			t.Errorf("StereoToMono(%d, %d) = %d, want %d", tt.left, tt.right, got[0], tt.want)
		}
	}
}

func TestStereoToMono_OddTrailingSample(t *testing.T) {
	// Three interleaved samples: one full frame plus a dangling left.
	mono := StereoToMono([]int16{100, 200, 300})
	if len(mono) != 1 {
		t.Fatalf("expected 1 mono sample, got %d", len(mono))
	}
	if mono[0] != 150 {
		t.Errorf("expected 150, got %d", mono[0])
	}
}

func TestResample_Downsample(t *testing.T) {
	// 48kHz -> 16kHz (3:1 ratio), 20ms
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = int16(i)
	}

	out, err := Resample(SamplesToBytes(samples), 48000, 16000, 1)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}
	if len(out)/2 != 320 {
		t.Errorf("expected 320 samples, got %d", len(out)/2)
	}
}

func TestResample_ClampsAtEnd(t *testing.T) {
	samples := []int16{0, 1000}
	out, err := Resample(SamplesToBytes(samples), 8000, 48000, 1)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}

	result := BytesToSamples(out)
	last := result[len(result)-1]
	if last != 1000 {
		t.Errorf("expected final sample clamped to 1000, got %d", last)
	}
}

func TestBytesToSamples_RoundTrip(t *testing.T) {
	data := []byte{0x02, 0x01, 0x04, 0x03}
	samples := BytesToSamples(data)

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 0x0102 {
		t.Errorf("sample 0: expected 0x0102, got 0x%04x", samples[0])
	}
	if samples[1] != 0x0304 {
		t.Errorf("sample 1: expected 0x0304, got 0x%04x", samples[1])
	}

	back := SamplesToBytes(samples)
	for i, b := range data {
		if back[i] != b {
			t.Errorf("byte %d: expected 0x%02x, got 0x%02x", i, b, back[i])
		}
	}
}
