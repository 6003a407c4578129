package ui

import (
	"encoding/binary"

	"github.com/cairnfall/gbccore/internal/emu"
)

// hpf is a one-pole DC-blocking high-pass filter, applied identically to
// both channels on the pull side; the core hands out raw samples.
type hpf struct {
	cap float64
}

func (f *hpf) apply(in int16) int16 {
	const alpha = 0.998
	out := float64(in) - f.cap
	f.cap = float64(in) - out*alpha
	switch {
	case out > 32767:
		return 32767
	case out < -32768:
		return -32768
	default:
		return int16(out)
	}
}

// apuStream adapts the APU's sample ring to io.Reader for the ebiten audio
// player: 16-bit little-endian interleaved stereo frames.
type apuStream struct {
	m     *emu.Machine
	muted *bool
	l, r  hpf
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	want := len(p) / 4
	var frames []int16
	if s.m.Loaded() && (s.muted == nil || !*s.muted) {
		frames = s.m.Bus().APU().PullStereo(want)
	}
	n := 0
	for i := 0; i+1 < len(frames); i += 2 {
		binary.LittleEndian.PutUint16(p[n:], uint16(s.l.apply(frames[i])))
		binary.LittleEndian.PutUint16(p[n+2:], uint16(s.r.apply(frames[i+1])))
		n += 4
	}
	// Underrun: pad with silence rather than stall the player.
	for ; n+4 <= len(p); n += 4 {
		p[n], p[n+1], p[n+2], p[n+3] = 0, 0, 0, 0
	}
	return n, nil
}
