// Package apu implements the four-channel audio unit: two pulse channels
// (channel 1 with a frequency sweep unit), the wave channel, the LFSR noise
// channel, the DIV-APU frame sequencer, and the stereo mixer. Waveform
// generation is clocked per dot by the bus; the 512Hz frame sequencer is
// clocked externally by the timer's DIV-APU falling-edge tap.
package apu

import (
	"sync/atomic"

	"github.com/cairnfall/gbccore/internal/gobutil"
)

const cpuHz = 4194304

// dacTable maps a channel's 4-bit output level to a signed 16-bit sample.
// Level 0 is full positive rail, level 15 full negative, linear in between.
var dacTable = [16]int16{
	32767, 28377, 23987, 19597,
	15207, 10817, 6427, 2037,
	-2353, -6743, -11133, -15523,
	-19913, -24303, -28693, -32768,
}

var dutyTable = [4][8]byte{
	{1, 1, 1, 1, 1, 1, 1, 0},
	{0, 1, 1, 1, 1, 1, 1, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 1},
}

// noiseDivisors is the base period table indexed by NR43's low three bits;
// the effective period is the divisor shifted left by NR43's upper nibble.
var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// readMasks gives the OR-mask applied to every register read in the
// 0xFF10-0xFF26 window; unreadable bits always read as 1.
var readMasks = [23]byte{
	0x80, 0x3F, 0x00, 0xFF, 0xBF, // NR10-NR14
	0xFF, 0x3F, 0x00, 0xFF, 0xBF, // FF15, NR21-NR24
	0x7F, 0xFF, 0x9F, 0xFF, 0xBF, // NR30-NR34
	0xFF, 0xFF, 0x00, 0x00, 0xBF, // FF1F, NR41-NR44
	0x00, 0x00, 0x70, // NR50-NR52
}

// channel carries the state shared by all four generators. Which fields are
// live depends on the generator: phase/divider for the pulses and wave,
// lfsr for noise.
type channel struct {
	dacOn   bool
	enabled bool
	output  byte // current 4-bit DAC level

	length int
	lenEn  bool

	volume byte
	envTmr byte
	envOn  bool

	timer   int
	divider uint16
	step    int
	lfsr    uint16
}

// sweepUnit is channel 1's frequency sweep state. negCalcLatch records that
// a sweep calculation happened while negate mode was on; clearing negate
// mode afterwards kills the channel.
type sweepUnit struct {
	enabled      bool
	timer        byte
	thresh       byte
	negMode      bool
	negCalcLatch bool
	shadow       uint16
}

// APU owns the register file at 0xFF10-0xFF3F and produces stereo PCM. Two
// output paths exist: SampleStereo computes one sample on demand from the
// current channel outputs (the host gates the call rate), and Tick pushes
// samples into an internal SPSC ring at the configured rate for pull-based
// hosts like the ebiten audio stream.
type APU struct {
	powered bool
	frame   int // frame sequencer step about to run, 0..7

	// raw registers, indexed by addr-0xFF10 for 0x00..0x16
	regs    [23]byte
	waveRAM [16]byte

	ch1, ch2, ch3, ch4 channel
	fsu                sweepUnit

	sampleRate      int
	cyclesPerSample float64
	cycAccum        float64

	// Stereo SPSC ring between the core and the host's audio goroutine.
	// Lock-free: head belongs to the producer, tail to the consumer, and
	// the producer reclaims the oldest frame by CAS when the ring fills.
	sL, sR       []int16
	sHead, sTail atomic.Int64
}

func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	a := &APU{
		powered:         true,
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		sL:              make([]int16, 1<<16),
		sR:              make([]int16, 1<<16),
	}
	return a
}

// SetSampleRate retunes the cadence at which Tick pushes samples into the
// host-facing ring buffer.
func (a *APU) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	a.sampleRate = rate
	a.cyclesPerSample = float64(cpuHz) / float64(rate)
}

func (a *APU) reg(addr uint16) byte       { return a.regs[addr-0xFF10] }
func (a *APU) setReg(addr uint16, v byte) { a.regs[addr-0xFF10] = v }

// Read serves the 0xFF10-0xFF3F window with the per-register read masks.
// Wave RAM stays readable with the APU powered off.
func (a *APU) Read(addr uint16) byte {
	switch {
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return a.waveRAM[addr-0xFF30]
	case addr == 0xFF26:
		v := byte(0x70)
		if a.powered {
			v |= 0x80
		}
		if a.ch1.enabled {
			v |= 1 << 0
		}
		if a.ch2.enabled {
			v |= 1 << 1
		}
		if a.ch3.enabled {
			v |= 1 << 2
		}
		if a.ch4.enabled {
			v |= 1 << 3
		}
		return v
	case addr >= 0xFF10 && addr <= 0xFF25:
		return a.reg(addr) | readMasks[addr-0xFF10]
	default:
		return 0xFF
	}
}

// Write dispatches register writes; with the APU powered off only NR52 and
// wave RAM are writable.
func (a *APU) Write(addr uint16, v byte) {
	if addr >= 0xFF30 && addr <= 0xFF3F {
		a.waveRAM[addr-0xFF30] = v
		return
	}
	if addr == 0xFF26 {
		a.writeNR52(v)
		return
	}
	if !a.powered || addr < 0xFF10 || addr > 0xFF25 {
		return
	}
	a.setReg(addr, v)
	switch addr {
	case 0xFF10: // NR10
		a.negateTransition()
	case 0xFF11: // NR11
		a.ch1.length = 64 - int(v&0x3F)
	case 0xFF12: // NR12
		a.ch1.dacOn = v&0xF8 != 0
		if !a.ch1.dacOn {
			a.disable(&a.ch1)
		}
	case 0xFF14: // NR14
		a.lengthEnableWrite(&a.ch1, v)
		if v&0x80 != 0 {
			a.trigger(&a.ch1)
			a.triggerSweep()
		}
	case 0xFF16: // NR21
		a.ch2.length = 64 - int(v&0x3F)
	case 0xFF17: // NR22
		a.ch2.dacOn = v&0xF8 != 0
		if !a.ch2.dacOn {
			a.disable(&a.ch2)
		}
	case 0xFF19: // NR24
		a.lengthEnableWrite(&a.ch2, v)
		if v&0x80 != 0 {
			a.trigger(&a.ch2)
		}
	case 0xFF1A: // NR30
		a.ch3.dacOn = v&0x80 != 0
		if !a.ch3.dacOn {
			a.disable(&a.ch3)
		}
	case 0xFF1B: // NR31
		a.ch3.length = 256 - int(v)
	case 0xFF1E: // NR34
		a.lengthEnableWrite(&a.ch3, v)
		if v&0x80 != 0 {
			a.trigger(&a.ch3)
		}
	case 0xFF20: // NR41
		a.ch4.length = 64 - int(v&0x3F)
	case 0xFF21: // NR42
		a.ch4.dacOn = v&0xF8 != 0
		if !a.ch4.dacOn {
			a.disable(&a.ch4)
		}
	case 0xFF23: // NR44
		a.lengthEnableWrite(&a.ch4, v)
		if v&0x80 != 0 {
			a.trigger(&a.ch4)
		}
	}
}

func (a *APU) writeNR52(v byte) {
	on := v&0x80 != 0
	if on == a.powered {
		return
	}
	if !on {
		// Power off clears every register and channel; wave RAM survives.
		a.regs = [23]byte{}
		a.ch1 = channel{}
		a.ch2 = channel{}
		a.ch3 = channel{}
		a.ch4 = channel{}
		a.fsu = sweepUnit{}
		a.powered = false
		return
	}
	a.powered = true
	a.frame = 0
}

func (a *APU) disable(ch *channel) {
	ch.enabled = false
	ch.envOn = false
	ch.output = 0
	if ch == &a.ch1 {
		a.fsu.enabled = false
	}
}

func (a *APU) period(ch *channel) uint16 {
	var lo, hi uint16
	switch ch {
	case &a.ch1:
		lo, hi = uint16(a.reg(0xFF13)), uint16(a.reg(0xFF14)&0x07)
	case &a.ch2:
		lo, hi = uint16(a.reg(0xFF18)), uint16(a.reg(0xFF19)&0x07)
	case &a.ch3:
		lo, hi = uint16(a.reg(0xFF1D)), uint16(a.reg(0xFF1E)&0x07)
	}
	return hi<<8 | lo
}

func (a *APU) setPeriod(period uint16) {
	// Only the sweep unit rewrites a period, and only channel 1's.
	a.setReg(0xFF13, byte(period))
	a.setReg(0xFF14, (a.reg(0xFF14)&^0x07)|byte(period>>8)&0x07)
}

func (a *APU) initVolume(ch *channel) byte {
	switch ch {
	case &a.ch1:
		return a.reg(0xFF12) >> 4
	case &a.ch2:
		return a.reg(0xFF17) >> 4
	case &a.ch4:
		return a.reg(0xFF21) >> 4
	}
	return 0
}

// lengthEnableWrite handles the NRx4 length-enable bit, including the extra
// length clock when it is newly enabled during the first half of the frame
// sequencer period (the half whose next step does not clock lengths).
func (a *APU) lengthEnableWrite(ch *channel, v byte) {
	prev := ch.lenEn
	ch.lenEn = v&0x40 != 0
	if ch.lenEn && !prev && a.frame%2 == 1 {
		a.clockLength(ch)
	}
}

func (a *APU) maxLength(ch *channel) int {
	if ch == &a.ch3 {
		return 256
	}
	return 64
}

func (a *APU) trigger(ch *channel) {
	ch.enabled = ch.dacOn
	if ch.length == 0 {
		ch.length = a.maxLength(ch)
		// Re-armed at max; the first-half quirk still applies.
		if ch.lenEn && a.frame%2 == 1 {
			a.clockLength(ch)
		}
	}
	ch.divider = a.period(ch)
	ch.envOn = true
	ch.envTmr = 0
	ch.volume = a.initVolume(ch)
	ch.step = 0
	if ch == &a.ch4 {
		// All-zero is the XNOR feedback's free-running seed; all-ones would
		// lock the register.
		ch.lfsr = 0
	}
}

// --- frame sequencer ---

// DivAPUEvent runs one frame sequencer step. It is driven by the system
// timer's DIV-APU falling-edge tap, so CPU writes to DIV audibly disturb
// envelope and length timing exactly as on hardware.
func (a *APU) DivAPUEvent() {
	if !a.powered {
		return
	}
	switch a.frame {
	case 0, 4:
		a.clockLengths()
	case 2, 6:
		a.clockSweep()
		a.clockLengths()
	case 7:
		a.clockEnvelope(&a.ch1, a.reg(0xFF12))
		a.clockEnvelope(&a.ch2, a.reg(0xFF17))
		a.clockEnvelope(&a.ch4, a.reg(0xFF21))
	}
	a.frame = (a.frame + 1) % 8
}

func (a *APU) clockLengths() {
	a.clockLength(&a.ch1)
	a.clockLength(&a.ch2)
	a.clockLength(&a.ch3)
	a.clockLength(&a.ch4)
}

func (a *APU) clockLength(ch *channel) {
	if !ch.lenEn {
		return
	}
	if ch.length > 0 {
		ch.length--
	}
	if ch.length == 0 {
		a.disable(ch)
	}
}

func (a *APU) clockEnvelope(ch *channel, nrx2 byte) {
	if !ch.envOn {
		return
	}
	pace := nrx2 & 0x07
	if pace == 0 {
		return
	}
	ch.envTmr++
	if ch.envTmr < pace {
		return
	}
	ch.envTmr = 0
	if nrx2&0x08 != 0 {
		if ch.volume < 0x0F {
			ch.volume++
		}
		ch.envOn = ch.volume != 0x0F
	} else {
		if ch.volume > 0 {
			ch.volume--
		}
		ch.envOn = ch.volume != 0
	}
}

// --- channel 1 frequency sweep ---

func (a *APU) sweepPace() byte { return (a.reg(0xFF10) >> 4) & 0x07 }
func (a *APU) sweepStep() byte { return a.reg(0xFF10) & 0x07 }

func (a *APU) triggerSweep() {
	a.fsu.shadow = a.period(&a.ch1)
	a.fsu.timer = 0
	pace := a.sweepPace()
	if pace == 0 {
		a.fsu.thresh = 8
	} else {
		a.fsu.thresh = pace
	}
	a.fsu.negMode = a.reg(0xFF10)&0x08 != 0
	a.fsu.negCalcLatch = false
	a.fsu.enabled = pace != 0 || a.sweepStep() != 0
	if a.sweepStep() != 0 {
		a.sweepCalcAndCheck()
	}
}

// negateTransition applies the NR10 write quirk: if a sweep calculation ran
// in negate mode, switching negate mode off disables the channel.
func (a *APU) negateTransition() {
	prev := a.fsu.negMode
	a.fsu.negMode = a.reg(0xFF10)&0x08 != 0
	if a.sweepPace() == 0 {
		a.fsu.negCalcLatch = false
		return
	}
	if prev && !a.fsu.negMode && a.fsu.negCalcLatch {
		a.fsu.enabled = false
		a.disable(&a.ch1)
	}
	if a.fsu.negMode {
		a.fsu.negCalcLatch = false
	}
}

func (a *APU) sweepCalc() uint16 {
	step := a.sweepStep()
	period := a.fsu.shadow
	if step == 0 {
		return period
	}
	delta := period >> step
	if a.fsu.negMode {
		return period - delta
	}
	return period + delta
}

func (a *APU) sweepCalcAndCheck() {
	period := a.sweepCalc()
	if a.fsu.negMode {
		a.fsu.negCalcLatch = true
	}
	if period > 0x7FF {
		a.fsu.enabled = false
		a.disable(&a.ch1)
		return
	}
	if a.sweepStep() != 0 {
		a.fsu.shadow = period
		a.setPeriod(period)
		if a.sweepCalc() > 0x7FF {
			a.fsu.enabled = false
			a.disable(&a.ch1)
		}
	}
}

func (a *APU) clockSweep() {
	if !a.fsu.enabled {
		return
	}
	a.fsu.timer++
	if a.fsu.timer < a.fsu.thresh {
		return
	}
	a.fsu.timer = 0
	pace := a.sweepPace()
	if pace == 0 {
		a.fsu.thresh = 8
		return
	}
	a.fsu.thresh = pace
	a.sweepCalcAndCheck()
}

// --- waveform generators ---

// Tick advances all four generators by the given number of dots and pushes
// PCM into the stereo ring when a sample period elapses.
func (a *APU) Tick(dots int) {
	for i := 0; i < dots; i++ {
		if a.powered {
			a.clockPulse(&a.ch1, a.reg(0xFF11))
			a.clockPulse(&a.ch2, a.reg(0xFF16))
			a.clockWave()
			a.clockNoise()
		}
		a.cycAccum++
		for a.cycAccum >= a.cyclesPerSample {
			a.cycAccum -= a.cyclesPerSample
			l, r := a.SampleStereo()
			a.pushStereo(l, r)
		}
	}
}

func (a *APU) clockPulse(ch *channel, nrx1 byte) {
	if !ch.enabled {
		return
	}
	ch.timer++
	if ch.timer < 4 {
		return
	}
	ch.timer = 0
	ch.divider++
	if ch.divider > 0x7FF {
		ch.divider = a.period(ch)
		ch.step = (ch.step + 1) % 8
		if dutyTable[nrx1>>6][ch.step] != 0 {
			ch.output = ch.volume
		} else {
			ch.output = 0
		}
	}
}

func (a *APU) clockWave() {
	ch := &a.ch3
	if !ch.enabled {
		return
	}
	ch.timer++
	if ch.timer < 2 {
		return
	}
	ch.timer = 0
	ch.divider++
	if ch.divider > 0x7FF {
		ch.divider = a.period(ch)
		sample := a.waveRAM[ch.step>>1]
		if ch.step&1 == 0 {
			sample >>= 4
		}
		sample &= 0x0F
		switch (a.reg(0xFF1C) >> 5) & 0x03 {
		case 0:
			sample = 0
		case 2:
			sample >>= 1
		case 3:
			sample >>= 2
		}
		ch.output = sample
		ch.step = (ch.step + 1) % 32
	}
}

func (a *APU) clockNoise() {
	ch := &a.ch4
	if !ch.enabled {
		return
	}
	nr43 := a.reg(0xFF22)
	ch.timer++
	if ch.timer < noiseDivisors[nr43&0x07]<<(nr43>>4) {
		return
	}
	ch.timer = 0
	bit0 := ch.lfsr & 1
	bit1 := (ch.lfsr >> 1) & 1
	feedback := ^(bit0 ^ bit1) & 1
	ch.lfsr = (ch.lfsr & 0x7FFF) | feedback<<15
	if nr43&0x08 != 0 {
		ch.lfsr = (ch.lfsr & 0xFF7F) | feedback<<7
	}
	ch.lfsr >>= 1
	if feedback == 0 {
		ch.output = 0
	} else {
		ch.output = ch.volume
	}
}

// --- mixer ---

func (a *APU) mixSide(panBits, volume byte) int16 {
	var sum int32
	var active int32
	for i, ch := range [4]*channel{&a.ch1, &a.ch2, &a.ch3, &a.ch4} {
		if ch.dacOn && panBits&(1<<i) != 0 {
			sum += int32(dacTable[ch.output])
			active++
		}
	}
	if active == 0 {
		return 0
	}
	return int16((sum / active) * int32(volume+1) / 8)
}

// SampleStereo computes one stereo sample pair from the current channel
// outputs, routed through NR51 panning and scaled by the NR50 master
// volumes. Samples are raw; any DC-blocking filter is the host's concern.
func (a *APU) SampleStereo() (int16, int16) {
	nr50, nr51 := a.reg(0xFF24), a.reg(0xFF25)
	l := a.mixSide(nr51>>4, (nr50>>4)&0x07)
	r := a.mixSide(nr51&0x0F, nr50&0x07)
	return l, r
}

// --- host transport ---

func (a *APU) pushStereo(l, r int16) {
	mask := int64(len(a.sL) - 1)
	head := a.sHead.Load()
	next := (head + 1) & mask
	if tail := a.sTail.Load(); next == tail {
		// Overfull: drop the oldest frame rather than stall the core. If the
		// CAS loses, the consumer just advanced tail and a slot is free
		// anyway.
		a.sTail.CompareAndSwap(tail, (tail+1)&mask)
	}
	a.sL[head] = l
	a.sR[head] = r
	a.sHead.Store(next)
}

// PullStereo returns up to max stereo frames as interleaved int16 pairs.
func (a *APU) PullStereo(max int) []int16 {
	if max <= 0 {
		return nil
	}
	mask := int64(len(a.sL) - 1)
	for {
		tail := a.sTail.Load()
		n := int((a.sHead.Load() - tail) & mask)
		if n == 0 {
			return nil
		}
		if n > max {
			n = max
		}
		out := make([]int16, 0, n*2)
		idx := tail
		for i := 0; i < n; i++ {
			out = append(out, a.sL[idx], a.sR[idx])
			idx = (idx + 1) & mask
		}
		if a.sTail.CompareAndSwap(tail, idx) {
			return out
		}
		// The producer lapped us and reclaimed frames we were copying; the
		// copied data may straddle the overwrite, so redo the batch.
	}
}

// StereoAvailable reports the number of buffered stereo frames.
func (a *APU) StereoAvailable() int {
	return int((a.sHead.Load() - a.sTail.Load()) & int64(len(a.sL)-1))
}

// --- save state ---

type apuState struct {
	Powered  bool
	Frame    int
	Regs     [23]byte
	WaveRAM  [16]byte
	Ch1      channelState
	Ch2      channelState
	Ch3      channelState
	Ch4      channelState
	FSU      sweepState
	CycAccum float64
}

type channelState struct {
	DACOn   bool
	Enabled bool
	Output  byte
	Length  int
	LenEn   bool
	Volume  byte
	EnvTmr  byte
	EnvOn   bool
	Timer   int
	Divider uint16
	Step    int
	LFSR    uint16
}

type sweepState struct {
	Enabled      bool
	Timer        byte
	Thresh       byte
	NegMode      bool
	NegCalcLatch bool
	Shadow       uint16
}

func snapshotChannel(ch *channel) channelState {
	return channelState{
		DACOn: ch.dacOn, Enabled: ch.enabled, Output: ch.output,
		Length: ch.length, LenEn: ch.lenEn,
		Volume: ch.volume, EnvTmr: ch.envTmr, EnvOn: ch.envOn,
		Timer: ch.timer, Divider: ch.divider, Step: ch.step, LFSR: ch.lfsr,
	}
}

func restoreChannel(ch *channel, s channelState) {
	ch.dacOn, ch.enabled, ch.output = s.DACOn, s.Enabled, s.Output
	ch.length, ch.lenEn = s.Length, s.LenEn
	ch.volume, ch.envTmr, ch.envOn = s.Volume, s.EnvTmr, s.EnvOn
	ch.timer, ch.divider, ch.step, ch.lfsr = s.Timer, s.Divider, s.Step, s.LFSR
}

func (a *APU) SaveState() []byte {
	return gobutil.Encode(apuState{
		Powered: a.powered, Frame: a.frame,
		Regs: a.regs, WaveRAM: a.waveRAM,
		Ch1: snapshotChannel(&a.ch1), Ch2: snapshotChannel(&a.ch2),
		Ch3: snapshotChannel(&a.ch3), Ch4: snapshotChannel(&a.ch4),
		FSU: sweepState{
			Enabled: a.fsu.enabled, Timer: a.fsu.timer, Thresh: a.fsu.thresh,
			NegMode: a.fsu.negMode, NegCalcLatch: a.fsu.negCalcLatch, Shadow: a.fsu.shadow,
		},
		CycAccum: a.cycAccum,
	})
}

func (a *APU) LoadState(data []byte) {
	var s apuState
	if !gobutil.Decode(data, &s) {
		return
	}
	a.powered, a.frame = s.Powered, s.Frame
	a.regs, a.waveRAM = s.Regs, s.WaveRAM
	restoreChannel(&a.ch1, s.Ch1)
	restoreChannel(&a.ch2, s.Ch2)
	restoreChannel(&a.ch3, s.Ch3)
	restoreChannel(&a.ch4, s.Ch4)
	a.fsu = sweepUnit{
		enabled: s.FSU.Enabled, timer: s.FSU.Timer, thresh: s.FSU.Thresh,
		negMode: s.FSU.NegMode, negCalcLatch: s.FSU.NegCalcLatch, shadow: s.FSU.Shadow,
	}
	a.cycAccum = s.CycAccum
}
