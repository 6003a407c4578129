package emu

import (
	"testing"
)

// buildROM assembles a minimal 32KB image with a valid header checksum and
// the given code at the entry point 0x0100.
func buildROM(cartType byte, ramSizeCode byte, code []byte) []byte {
	rom := make([]byte, 0x8000)
	copy(rom[0x0100:], code)
	rom[0x0147] = cartType
	rom[0x0148] = 0x00 // 32KB, 2 banks
	rom[0x0149] = ramSizeCode
	var sum byte
	for a := 0x0134; a <= 0x014C; a++ {
		sum = sum - rom[a] - 1
	}
	rom[0x014D] = sum
	return rom
}

func loadMachine(t *testing.T, rom []byte) *Machine {
	t.Helper()
	m := New(Config{})
	if err := m.LoadCartridge(rom, "test"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestLoadRejectsBadImages(t *testing.T) {
	m := New(Config{})
	if err := m.LoadCartridge(make([]byte, 0x100), "tiny"); err == nil {
		t.Fatalf("expected error for undersized image")
	}
	rom := buildROM(0x00, 0x00, nil)
	rom[0x0134] = 0x55 // break the checksum
	if err := m.LoadCartridge(rom, "bad"); err == nil {
		t.Fatalf("expected checksum error")
	}
	rom = buildROM(0xFC, 0x00, nil) // pocket camera: unsupported mapper
	if err := m.LoadCartridge(rom, "camera"); err == nil {
		t.Fatalf("expected unknown mapper error")
	}
	if m.Loaded() {
		t.Fatalf("machine mutated by failed loads")
	}
}

func TestNOPLoopScenario(t *testing.T) {
	// NOP; JR -3: loops over the entry point forever.
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x00, 0x18, 0xFD}))
	f0 := m.CPU().F
	for i := 0; i < 10000; i++ {
		m.Tick()
	}
	pc := m.CPU().PC
	if pc < 0x0100 || pc > 0x0102 {
		t.Fatalf("PC=%04X escaped the loop", pc)
	}
	if m.CPU().F != f0 {
		t.Fatalf("flags changed: %02X -> %02X", f0, m.CPU().F)
	}
	if p := m.Bus().IF() & m.Bus().IE(); p != 0 {
		t.Fatalf("unexpected pending interrupts: %02X", p)
	}
}

func TestTIMAMaxRateScenario(t *testing.T) {
	// JR -2 keeps the CPU spinning without touching timer registers.
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	b := m.Bus()
	b.Write(0xFF04, 0x00) // reset the divider to a known phase
	b.Write(0xFF07, 0x05) // enable, 262144 Hz
	b.Write(0xFF06, 0x42)
	b.Write(0xFF05, 0xFF)
	b.SetIF(0x00)

	for i := 0; i < 4; i++ { // 16 dots
		m.Tick()
	}
	if got := b.Read(0xFF05); got != 0x00 {
		t.Fatalf("TIMA after overflow got %02X want 00", got)
	}
	if b.IF()&(1<<2) != 0 {
		t.Fatalf("timer interrupt requested before the reload cycle")
	}
	m.Tick()
	m.Tick()
	if got := b.Read(0xFF05); got != 0x42 {
		t.Fatalf("TIMA after reload got %02X want 42", got)
	}
	if b.IF()&(1<<2) == 0 {
		t.Fatalf("timer interrupt not requested on reload")
	}
}

func TestDMABurstScenario(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	b := m.Bus()
	b.Write(0xFF40, 0x00) // LCD off so only DMA gates OAM
	for i := 0; i < 0xA0; i++ {
		b.Write(0xC000+uint16(i), byte(i))
	}
	b.Write(0xFF46, 0xC0)
	if got := b.Read(0xFE00); got != 0xFF {
		t.Fatalf("OAM readable during DMA: %02X", got)
	}
	for i := 0; i < 161; i++ {
		m.Tick()
	}
	for i := 0; i < 0xA0; i++ {
		if got := b.Read(0xFE00 + uint16(i)); got != byte(i) {
			t.Fatalf("OAM[%02X]=%02X want %02X", i, got, byte(i))
		}
	}
}

func TestFrameCadence(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	m.StepFrame()
	n := 0
	for !m.Tick() {
		n++
	}
	// 70224 dots per frame at 4 dots per M-cycle.
	if n+1 != 17556 {
		t.Fatalf("frame took %d m-cycles, want 17556", n+1)
	}
}

func TestFirstFrameAfterLCDEnableIsBlank(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	m.StepFrame() // the frame in flight when the LCD came on
	frame := m.CurrentFrame()
	for y := 0; y < 144; y += 48 {
		for x := 0; x < 160; x += 40 {
			if frame[y][x] != 0xFFE0F8D0 {
				t.Fatalf("pixel (%d,%d)=%08X want blank shade", x, y, frame[y][x])
			}
		}
	}
}

func TestJoypadInterruptOnPress(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	m.Bus().Write(0xFF00, 0x10) // select buttons
	m.Bus().SetIF(0)
	m.SetButton(BtnA, true)
	if m.Bus().IF()&(1<<4) == 0 {
		t.Fatalf("joypad interrupt not raised on press")
	}
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x0E {
		t.Fatalf("JOYP lower nibble %02X want 0E", got)
	}
	m.SetButton(BtnA, false)
	if got := m.Bus().Read(0xFF00) & 0x0F; got != 0x0F {
		t.Fatalf("JOYP after release %02X want 0F", got)
	}
}

func TestSaveRAMRoundTrip(t *testing.T) {
	m := loadMachine(t, buildROM(0x03, 0x02, []byte{0x18, 0xFE})) // MBC1+RAM+BATTERY
	b := m.Bus()
	b.Write(0x0000, 0x0A) // enable RAM
	b.Write(0xA000, 0x12)
	b.Write(0xA001, 0x34)
	snap := m.SaveRAM()
	if len(snap) == 0 {
		t.Fatalf("no battery snapshot from a battery-backed cartridge")
	}
	b.Write(0xA000, 0xFF)
	m.LoadRAM(snap)
	if got := b.Read(0xA000); got != 0x12 {
		t.Fatalf("restored RAM got %02X want 12", got)
	}
	// load(save()) is a no-op.
	m.LoadRAM(m.SaveRAM())
	if got := b.Read(0xA001); got != 0x34 {
		t.Fatalf("round trip disturbed RAM: %02X", got)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	for i := 0; i < 5000; i++ {
		m.Tick()
	}
	m.Bus().Write(0xC123, 0x77)
	pc := m.CPU().PC
	snap := m.SaveState()

	for i := 0; i < 5000; i++ {
		m.Tick()
	}
	m.Bus().Write(0xC123, 0x00)

	if !m.LoadState(snap) {
		t.Fatalf("state did not load")
	}
	if m.CPU().PC != pc {
		t.Fatalf("PC not restored: %04X want %04X", m.CPU().PC, pc)
	}
	if got := m.Bus().Read(0xC123); got != 0x77 {
		t.Fatalf("WRAM not restored: %02X", got)
	}
}

func TestSwapCartridgeRebuildsMachine(t *testing.T) {
	m := loadMachine(t, buildROM(0x00, 0x00, []byte{0x18, 0xFE}))
	m.Bus().Write(0xC000, 0xAA)
	if err := m.SwapCartridge(buildROM(0x00, 0x00, []byte{0x00, 0x18, 0xFD}), "second"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := m.Bus().Read(0xC000); got == 0xAA {
		t.Fatalf("WRAM survived a cartridge swap")
	}
	if m.CPU().PC != 0x0100 {
		t.Fatalf("PC not reset on swap: %04X", m.CPU().PC)
	}
}

func TestRTCTickSecondReachesCartridge(t *testing.T) {
	m := loadMachine(t, buildROM(0x10, 0x02, []byte{0x18, 0xFE})) // MBC3+RTC+RAM+BATTERY
	b := m.Bus()
	b.Write(0x0000, 0x0A) // enable RAM/RTC
	m.RTCTickSecond()
	m.RTCTickSecond()
	b.Write(0x6000, 0x00)
	b.Write(0x6000, 0x01) // latch
	b.Write(0x4000, 0x08) // seconds register
	if got := b.Read(0xA000); got != 2 {
		t.Fatalf("latched RTC seconds got %d want 2", got)
	}
}

func TestCompatPaletteSelection(t *testing.T) {
	rom := buildROM(0x00, 0x00, nil)
	copy(rom[0x0134:], "TETRIS")
	var sum byte
	for a := 0x0134; a <= 0x014C; a++ {
		sum = sum - rom[a] - 1
	}
	rom[0x014D] = sum
	m := New(Config{CompatPalettes: true})
	if err := m.LoadCartridge(rom, "tetris"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if id, ok := autoCompatPaletteFromHeader(m.Header()); !ok || id != 2 {
		t.Fatalf("TETRIS palette id=%d ok=%v want 2", id, ok)
	}
}
