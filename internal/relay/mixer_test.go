package relay

import (
	"encoding/binary"
	"testing"
)

const canonicalSamples = CanonicalFrameBytes / 2

func sampleFrame(t *testing.T, values ...int16) []byte {
	t.Helper()
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(v))
	}
	return buf
}

func canonicalFrameAllSamples(v int16) []byte {
	buf := make([]byte, CanonicalFrameBytes)
	for i := 0; i < canonicalSamples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(v))
	}
	return buf
}

func decodeSamples(t *testing.T, frame []byte) []int16 {
	t.Helper()
	out := make([]int16, len(frame)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
	}
	return out
}

func TestMixSingleContributorIsIdentity(t *testing.T) {
	in := canonicalFrameAllSamples(1000)
	out := mixFrames([][]byte{in}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)

	if string(out) != string(in) {
		t.Error("mixing a single frame did not reproduce it exactly")
	}
}

func TestMixTwoFramesWithoutSaturationSums(t *testing.T) {
	a := canonicalFrameAllSamples(100)
	b := canonicalFrameAllSamples(200)

	out := mixFrames([][]byte{a, b}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	samples := decodeSamples(t, out)

	for i, s := range samples {
		if s != 300 {
			t.Fatalf("sample %d = %d, want 300", i, s)
			break
		}
	}
}

func TestMixIsCommutative(t *testing.T) {
	a := canonicalFrameAllSamples(12345)
	b := canonicalFrameAllSamples(-6789)

	ab := mixFrames([][]byte{a, b}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	ba := mixFrames([][]byte{b, a}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)

	if string(ab) != string(ba) {
		t.Error("mixFrames(a, b) != mixFrames(b, a)")
	}
}

func TestMixClampsPositiveOverflow(t *testing.T) {
	a := canonicalFrameAllSamples(20000)
	b := canonicalFrameAllSamples(20000)

	out := mixFrames([][]byte{a, b}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	for _, s := range decodeSamples(t, out) {
		if s != 32767 {
			t.Fatalf("sample = %d, want clamped 32767", s)
		}
	}
}

func TestMixClampsNegativeOverflow(t *testing.T) {
	a := canonicalFrameAllSamples(-20000)
	b := canonicalFrameAllSamples(-20000)
	c := canonicalFrameAllSamples(-20000)

	out := mixFrames([][]byte{a, b, c}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	for _, s := range decodeSamples(t, out) {
		if s != -32768 {
			t.Fatalf("sample = %d, want clamped -32768", s)
		}
	}
}

func TestMixOppositeSignsCancel(t *testing.T) {
	a := canonicalFrameAllSamples(10000)
	b := canonicalFrameAllSamples(-10000)

	out := mixFrames([][]byte{a, b}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	for _, s := range decodeSamples(t, out) {
		if s != 0 {
			t.Fatalf("sample = %d, want 0", s)
		}
	}
}

func TestMixShortInputFrameZeroPadded(t *testing.T) {
	short := sampleFrame(t, 1000, 2000) // only 2 samples, far short of canonical
	out := mixFrames([][]byte{short}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	samples := decodeSamples(t, out)

	if samples[0] != 1000 || samples[1] != 2000 {
		t.Fatalf("first two samples = %v, want [1000 2000]", samples[:2])
	}
	for i := 2; i < len(samples); i++ {
		if samples[i] != 0 {
			t.Fatalf("sample %d = %d, want 0 (zero-padded)", i, samples[i])
		}
	}
}

func TestMixLongInputFrameTruncated(t *testing.T) {
	long := make([]byte, CanonicalFrameBytes+200)
	for i := 0; i < len(long)/2; i++ {
		binary.LittleEndian.PutUint16(long[i*2:i*2+2], 7)
	}

	out := mixFrames([][]byte{long}, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	if len(out) != CanonicalFrameBytes {
		t.Fatalf("output length = %d, want %d", len(out), CanonicalFrameBytes)
	}
	for _, s := range decodeSamples(t, out) {
		if s != 7 {
			t.Fatalf("sample = %d, want 7", s)
		}
	}
}

func TestMixEmptyInputProducesSilence(t *testing.T) {
	out := mixFrames(nil, make([]byte, CanonicalFrameBytes), CanonicalFrameBytes)
	for _, s := range decodeSamples(t, out) {
		if s != 0 {
			t.Fatalf("sample = %d, want 0", s)
		}
	}
}

func TestClampInt16(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{1 << 20, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-(1 << 20), -32768},
	}
	for _, tt := range tests {
		if got := clampInt16(tt.in); got != tt.want {
			t.Errorf("clampInt16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestInboxSwapDrainsAndResets(t *testing.T) {
	var box inbox
	box.add([]byte{1})
	box.add([]byte{2})

	drained := box.swap()
	if len(drained) != 2 {
		t.Fatalf("swap() returned %d frames, want 2", len(drained))
	}

	if empty := box.swap(); len(empty) != 0 {
		t.Errorf("second swap() returned %d frames, want 0", len(empty))
	}
}
