package apu

import "testing"

// triggerPulse1 arms channel 1 with a sane envelope and fires NR14.
func triggerPulse1(a *APU, nr14 byte) {
	a.Write(0xFF12, 0xF0) // full volume, DAC on
	a.Write(0xFF13, 0x00)
	a.Write(0xFF14, nr14|0x80)
}

func TestTriggerEnablesChannelAndNR52Reflects(t *testing.T) {
	a := New(48000)
	triggerPulse1(a, 0x00)
	if !a.ch1.enabled {
		t.Fatalf("channel 1 not enabled after trigger")
	}
	if a.Read(0xFF26)&0x01 == 0 {
		t.Fatalf("NR52 channel 1 status bit clear")
	}
}

func TestTriggerWithDACOffStaysDisabled(t *testing.T) {
	a := New(48000)
	a.Write(0xFF12, 0x00) // DAC off
	a.Write(0xFF14, 0x80)
	if a.ch1.enabled {
		t.Fatalf("channel enabled with DAC off")
	}
}

func TestDACDisableKillsChannel(t *testing.T) {
	a := New(48000)
	triggerPulse1(a, 0x00)
	a.Write(0xFF12, 0x07) // upper 5 bits zero: DAC off
	if a.ch1.enabled {
		t.Fatalf("channel survived DAC shutdown")
	}
}

func TestLengthCounterDisablesChannel(t *testing.T) {
	a := New(48000)
	a.Write(0xFF11, 0x3F)  // length field 63 -> timer 1
	triggerPulse1(a, 0x40) // length enabled
	// Walk the sequencer to the next length step.
	for i := 0; i < 8 && a.ch1.enabled; i++ {
		a.DivAPUEvent()
	}
	if a.ch1.enabled {
		t.Fatalf("length expiry did not disable the channel")
	}
	if a.Read(0xFF26)&0x01 != 0 {
		t.Fatalf("NR52 still reports channel 1 on")
	}
}

func TestLengthEnableFirstHalfExtraClock(t *testing.T) {
	a := New(48000)
	a.DivAPUEvent()       // run step 0; next step (1) does not clock lengths
	a.Write(0xFF11, 0x3E) // length timer 2
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF14, 0x40) // enable length without trigger: extra clock
	if a.ch1.length != 1 {
		t.Fatalf("extra length clock missing: length=%d want 1", a.ch1.length)
	}
}

func TestDisabledChannelOutputsZeroRegardlessOfMixer(t *testing.T) {
	a := New(48000)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF25, 0xFF)
	l, r := a.SampleStereo()
	if l != 0 || r != 0 {
		t.Fatalf("silent machine produced %d/%d", l, r)
	}
}

func TestMixerRoutesPerNR51(t *testing.T) {
	a := New(48000)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF25, 0x01) // channel 1 right only
	triggerPulse1(a, 0x00)
	a.ch1.output = 0x0F
	l, r := a.SampleStereo()
	if l != 0 {
		t.Fatalf("left should be silent, got %d", l)
	}
	if r == 0 {
		t.Fatalf("right should carry channel 1")
	}
}

func TestSweepOverflowDisablesChannel(t *testing.T) {
	a := New(48000)
	a.Write(0xFF10, 0x11) // pace 1, add mode, step 1
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF13, 0xFF)
	a.Write(0xFF14, 0x87) // trigger, period 0x7FF
	// Shadow 0x7FF + (0x7FF>>1) overflows on the immediate trigger check.
	if a.ch1.enabled {
		t.Fatalf("sweep overflow on trigger did not disable channel")
	}
}

func TestSweepNegateModeLatch(t *testing.T) {
	a := New(48000)
	a.Write(0xFF10, 0x19) // pace 1, negate, step 1
	a.Write(0xFF12, 0xF0)
	a.Write(0xFF13, 0x00)
	a.Write(0xFF14, 0x84) // trigger, period 0x400: calc happens in negate mode
	if !a.ch1.enabled {
		t.Fatalf("channel should survive a negate-mode calc")
	}
	a.Write(0xFF10, 0x11) // clear negate after a negate-mode calc
	if a.ch1.enabled {
		t.Fatalf("clearing negate after a negate-mode calc must disable the channel")
	}
}

func TestPowerOffClearsRegistersAndMasksReads(t *testing.T) {
	a := New(48000)
	a.Write(0xFF24, 0x77)
	a.Write(0xFF25, 0xFF)
	triggerPulse1(a, 0x00)
	a.Write(0xFF30, 0xAB)

	a.Write(0xFF26, 0x00) // power off
	if got := a.Read(0xFF26); got != 0x70 {
		t.Fatalf("NR52 while off got %02X want 70", got)
	}
	if got := a.Read(0xFF24); got != 0x00 {
		t.Fatalf("NR50 not cleared: %02X", got)
	}
	if got := a.Read(0xFF10); got != 0x80 {
		t.Fatalf("NR10 should read just its mask: %02X", got)
	}
	// Writes while off are dropped...
	a.Write(0xFF24, 0x55)
	if got := a.Read(0xFF24); got != 0x00 {
		t.Fatalf("NR50 writable while off")
	}
	// ...but wave RAM stays accessible.
	if got := a.Read(0xFF30); got != 0xAB {
		t.Fatalf("wave RAM lost on power off: %02X", got)
	}
	a.Write(0xFF31, 0xCD)
	if got := a.Read(0xFF31); got != 0xCD {
		t.Fatalf("wave RAM not writable while off")
	}
}

func TestRegisterReadMasks(t *testing.T) {
	a := New(48000)
	a.Write(0xFF11, 0x80) // duty 2, length 0
	if got := a.Read(0xFF11); got&0x3F != 0x3F {
		t.Fatalf("NR11 length bits readable: %02X", got)
	}
	if got := a.Read(0xFF13); got != 0xFF {
		t.Fatalf("NR13 is write-only: %02X", got)
	}
	a.Write(0xFF14, 0x40)
	if got := a.Read(0xFF14); got != 0xFF {
		t.Fatalf("NR14 read got %02X want FF (only bit6 readable)", got)
	}
}

func TestPulseWaveformProducesDutyPattern(t *testing.T) {
	a := New(48000)
	a.Write(0xFF11, 0x80) // 50% duty
	a.Write(0xFF12, 0xF0) // volume 15
	a.Write(0xFF13, 0x00) // period 0x700: 256 dots per waveform step
	a.Write(0xFF14, 0x87) // trigger
	seen := map[byte]bool{}
	for i := 0; i < 4*(2048-0x700)*8+64; i++ {
		a.Tick(1)
		seen[a.ch1.output] = true
	}
	if !seen[0x0F] || !seen[0x00] {
		t.Fatalf("pulse output never toggled: %v", seen)
	}
}

func TestNoiseLFSRAdvances(t *testing.T) {
	a := New(48000)
	a.Write(0xFF21, 0xF0)
	a.Write(0xFF22, 0x00) // divisor 8, shift 0
	a.Write(0xFF23, 0x80)
	before := a.ch4.lfsr
	a.Tick(64)
	if a.ch4.lfsr == before {
		t.Fatalf("LFSR did not advance")
	}
}

func TestWaveChannelReadsWaveRAM(t *testing.T) {
	a := New(48000)
	for i := 0; i < 16; i++ {
		a.Write(0xFF30+uint16(i), 0xFF)
	}
	a.Write(0xFF1A, 0x80) // DAC on
	a.Write(0xFF1C, 0x20) // full volume
	a.Write(0xFF1D, 0x00)
	a.Write(0xFF1E, 0x87) // trigger, period 0x700
	a.Tick(2 * (2048 - 0x700) * 2)
	if a.ch3.output != 0x0F {
		t.Fatalf("wave output got %X want F", a.ch3.output)
	}
}

func TestRingBufferTransport(t *testing.T) {
	a := New(48000)
	a.pushStereo(1, 2)
	a.pushStereo(3, 4)
	if n := a.StereoAvailable(); n != 2 {
		t.Fatalf("available=%d want 2", n)
	}
	out := a.PullStereo(8)
	if len(out) != 4 || out[0] != 1 || out[1] != 2 || out[2] != 3 || out[3] != 4 {
		t.Fatalf("pulled %v", out)
	}
	if a.StereoAvailable() != 0 {
		t.Fatalf("buffer not drained")
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	a := New(48000)
	triggerPulse1(a, 0x02)
	a.Write(0xFF30, 0x5A)
	a.Tick(128)
	data := a.SaveState()

	b := New(48000)
	b.LoadState(data)
	if b.ch1.enabled != a.ch1.enabled || b.ch1.divider != a.ch1.divider || b.ch1.volume != a.ch1.volume {
		t.Fatalf("channel state mismatch after load")
	}
	if b.waveRAM[0] != 0x5A {
		t.Fatalf("wave RAM not restored")
	}
	if b.frame != a.frame {
		t.Fatalf("frame sequencer step not restored")
	}
}
