// Package emu owns the whole machine: it constructs and links the
// cartridge, bus, timer, PPU, APU and CPU, installs the post-boot register
// file, and exposes the host-facing contract (Tick, SampleStereo,
// SetButton, RTC ticking, battery RAM snapshots, save states).
package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/cairnfall/gbccore/internal/bus"
	"github.com/cairnfall/gbccore/internal/cart"
	"github.com/cairnfall/gbccore/internal/cpu"
	"github.com/cairnfall/gbccore/internal/gobutil"
)

// Button identifies one of the eight keypad inputs.
type Button int

const (
	BtnA Button = iota
	BtnB
	BtnSelect
	BtnStart
	BtnRight
	BtnLeft
	BtnUp
	BtnDown
)

var buttonMasks = [8]byte{
	BtnA: bus.JoypA, BtnB: bus.JoypB,
	BtnSelect: bus.JoypSelectBtn, BtnStart: bus.JoypStart,
	BtnRight: bus.JoypRight, BtnLeft: bus.JoypLeft,
	BtnUp: bus.JoypUp, BtnDown: bus.JoypDown,
}

// Machine is the emulator instance. All subsystems live exactly as long as
// the Machine; the cartridge alone is torn down and rebuilt on swap.
type Machine struct {
	cfg Config

	rom  []byte
	name string
	hdr  *cart.Header
	cgb  bool

	cart cart.Cartridge
	bus  *bus.Bus
	cpu  *cpu.CPU

	buttons byte
	serial  io.Writer
}

func New(cfg Config) *Machine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Machine{cfg: cfg}
}

// LoadCartridge parses the image, selects the mapper, rebuilds every
// subsystem and installs post-boot register values (DMG or CGB per the
// header's CGB flag). On error the machine keeps its previous state.
func (m *Machine) LoadCartridge(rom []byte, name string) error {
	c, h, err := cart.Load(rom)
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	m.rom = rom
	m.name = name
	m.hdr = h
	m.cart = c
	m.cgb = !m.cfg.ForceDMG && (h.CGBFlag == 0x80 || h.CGBFlag == 0xC0)

	m.bus = bus.NewWithCartridge(c, m.cgb)
	m.bus.APU().SetSampleRate(m.cfg.SampleRate)
	if m.serial != nil {
		m.bus.SetSerialWriter(m.serial)
	}
	m.cpu = cpu.New(m.bus)
	m.installPostBoot()
	m.bus.SetJoypadState(m.buttons)

	if !m.cgb && m.cfg.CompatPalettes {
		if id, ok := autoCompatPaletteFromHeader(h); ok {
			set := cgbCompatSets[id]
			m.bus.PPU().SetDMGPalettes(set.bg, set.obj0, set.obj1)
		}
	}
	return nil
}

// SwapCartridge is LoadCartridge for a running machine; the old cartridge
// and every subsystem hanging off it are discarded.
func (m *Machine) SwapCartridge(rom []byte, name string) error {
	return m.LoadCartridge(rom, name)
}

// LoadFile reads a ROM image from disk and loads it.
func (m *Machine) LoadFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadCartridge(rom, path)
}

// installPostBoot writes the I/O defaults the boot ROM would leave behind;
// boot ROM emulation itself is out of scope.
func (m *Machine) installPostBoot() {
	if m.cgb {
		m.cpu.ResetCGB()
	} else {
		m.cpu.ResetDMG()
	}
	b := m.bus
	b.Write(0xFF00, 0xCF) // JOYP
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF10, 0x80)
	b.Write(0xFF11, 0xBF)
	b.Write(0xFF12, 0xF3)
	b.Write(0xFF14, 0xBF)
	b.Write(0xFF16, 0x3F)
	b.Write(0xFF19, 0xBF)
	b.Write(0xFF1A, 0x7F)
	b.Write(0xFF1B, 0xFF)
	b.Write(0xFF1C, 0x9F)
	b.Write(0xFF1E, 0xBF)
	b.Write(0xFF20, 0xFF)
	b.Write(0xFF23, 0xBF)
	b.Write(0xFF24, 0x77)
	b.Write(0xFF25, 0xF3)
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG and OBJ enabled
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// Loaded reports whether a cartridge is installed.
func (m *Machine) Loaded() bool { return m.bus != nil }

// Tick advances the machine by one M-cycle: the timer, DMA/HDMA engines,
// PPU dots and APU generators through the bus, then one CPU machine cycle.
// It returns true on the cycle a display frame completes.
func (m *Machine) Tick() bool {
	frame := m.bus.Tick()
	m.cpu.MachineCycle()
	return frame
}

// StepFrame runs until the next frame completes. The cycle cap only guards
// against a guest that disabled the LCD, where no frame ever ends.
func (m *Machine) StepFrame() {
	for i := 0; i < 200000; i++ {
		if m.Tick() {
			return
		}
	}
}

// SampleStereo computes one stereo PCM sample pair from the live APU state.
// The host gates the call rate against its output sample clock.
func (m *Machine) SampleStereo() (int16, int16) {
	return m.bus.APU().SampleStereo()
}

// SetButton updates one keypad input; a press can raise the Joypad
// interrupt through the bus.
func (m *Machine) SetButton(b Button, pressed bool) {
	if pressed {
		m.buttons |= buttonMasks[b]
	} else {
		m.buttons &^= buttonMasks[b]
	}
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
}

// RTCTickSecond advances the cartridge's real-time clock, if it has one.
// The host calls this once per wall-clock second.
func (m *Machine) RTCTickSecond() {
	if rt, ok := m.cart.(interface{ TickSecond() }); ok {
		rt.TickSecond()
	}
}

// SaveRAM snapshots battery-backed cartridge RAM (plus the RTC trailer for
// clock-equipped mappers). Nil when the cartridge has nothing to persist.
func (m *Machine) SaveRAM() []byte {
	if bb, ok := m.cart.(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// LoadRAM restores a battery snapshot produced by SaveRAM.
func (m *Machine) LoadRAM(data []byte) {
	if bb, ok := m.cart.(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
	}
}

// CurrentFrame borrows the most recent completed frame, 160x144 ARGB.
func (m *Machine) CurrentFrame() *[144][160]uint32 {
	return m.bus.PPU().CurrentFrame()
}

// SetSerialWriter streams serial port output, the channel the test ROM
// harnesses report through.
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.serial = w
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

func (m *Machine) Header() *cart.Header { return m.hdr }
func (m *Machine) CGB() bool            { return m.cgb }
func (m *Machine) Bus() *bus.Bus        { return m.bus }
func (m *Machine) CPU() *cpu.CPU        { return m.cpu }

// --- save state ---

type machineState struct {
	CGB bool
	CPU []byte
	Bus []byte
}

// SaveState snapshots the whole machine. The ROM image itself is not
// included; a state only loads back into a machine running the same image.
// The machine is run to the next instruction boundary first, since the CPU
// snapshot does not carry an in-flight instruction.
func (m *Machine) SaveState() []byte {
	if m.bus == nil {
		return nil
	}
	for i := 0; i < 8 && !m.cpu.AtInstructionBoundary(); i++ {
		m.Tick()
	}
	return gobutil.Encode(machineState{
		CGB: m.cgb,
		CPU: m.cpu.SaveState(),
		Bus: m.bus.SaveState(),
	})
}

func (m *Machine) LoadState(data []byte) bool {
	if m.bus == nil {
		return false
	}
	var s machineState
	if !gobutil.Decode(data, &s) || s.CGB != m.cgb {
		return false
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	return true
}
