// Package bus implements the MMU: the full 64KiB CPU address map, banked
// WRAM, the OAM DMA and HDMA transfer engines, and the I/O register window
// not owned by the PPU/APU/Timer/Cartridge components themselves.
package bus

import (
	"io"
	"log"
	"os"

	"github.com/cairnfall/gbccore/internal/apu"
	"github.com/cairnfall/gbccore/internal/cart"
	"github.com/cairnfall/gbccore/internal/gobutil"
	"github.com/cairnfall/gbccore/internal/ppu"
	"github.com/cairnfall/gbccore/internal/timer"
)

// Bus wires CPU-visible address space to cartridge, banked WRAM, HRAM, PPU,
// APU, timer, and the joypad/serial/interrupt register window.
type Bus struct {
	cart cart.Cartridge

	// Work RAM: 8 banks of 4KiB each on CGB (bank 0 fixed at 0xC000-0xCFFF,
	// switchable bank 1-7 at 0xD000-0xDFFF via SVBK); DMG only ever uses
	// banks 0 and 1.
	wram     [8][0x1000]byte
	wramBank byte // SVBK & 0x07, 0 reads back as bank 1

	hram [0x7F]byte

	ppu *ppu.PPU
	apu *apu.APU
	tmr *timer.Timer

	cgbMode     bool
	doubleSpeed bool
	speedSwitch bool // KEY1 bit0: armed, waiting for STOP

	ie    byte
	ifReg byte

	joypSelect byte
	joypad     byte
	joypLower4 byte

	sb byte
	sc byte
	sw io.Writer

	dma       byte
	dmaActive bool
	dmaDelay  int
	dmaSrc    uint16
	dmaIndex  int

	// HDMA (CGB general-purpose / HBlank VRAM transfer)
	hdmaSrc, hdmaDst uint16
	hdmaLen          int // remaining 0x10-byte blocks, -1 when idle
	hdmaHBlankMode   bool

	debugTimer bool
}

// New constructs a DMG Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom), false)
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge, cgbMode bool) *Bus {
	b := &Bus{cart: c, cgbMode: cgbMode, hdmaLen: -1}
	b.ppu = ppu.NewCGB(func(bit int) { b.ifReg |= 1 << bit }, cgbMode)
	b.apu = apu.New(48000)
	b.tmr = timer.New()
	b.tmr.RequestTimerIRQ = func() { b.ifReg |= 1 << 2 }
	b.tmr.DivAPUEvent = func() { b.apu.DivAPUEvent() }
	if os.Getenv("GBC_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }
func (b *Bus) Timer() *timer.Timer  { return b.tmr }
func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) IE() byte             { return b.ie }
func (b *Bus) IF() byte             { return b.ifReg }
func (b *Bus) SetIF(v byte)         { b.ifReg = v & 0x1F }
func (b *Bus) InDoubleSpeed() bool  { return b.doubleSpeed }

func (b *Bus) wramBankIndex() int {
	bank := b.wramBank & 0x07
	if bank == 0 {
		bank = 1
	}
	return int(bank)
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wram[b.wramBankIndex()][addr-0xD000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.Read(addr - 0x2000)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr == 0xFF00:
		return b.readJoyp()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tmr.DIV()
	case addr == 0xFF05:
		return b.tmr.TIMA()
	case addr == 0xFF06:
		return b.tmr.TMA()
	case addr == 0xFF07:
		return b.tmr.TAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.Read(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF4D:
		v := byte(0x7E)
		if b.doubleSpeed {
			v |= 0x80
		}
		if b.speedSwitch {
			v |= 0x01
		}
		return v
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF // write-only
	case addr == 0xFF55:
		if b.hdmaLen < 0 {
			return 0xFF
		}
		return byte(b.hdmaLen - 1)
	case addr == 0xFF70:
		return 0xF8 | (b.wramBank & 0x07)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wram[b.wramBankIndex()][addr-0xD000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.Write(addr-0x2000, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable region, ignored
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= 1 << 3
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		if b.debugTimer {
			log.Printf("timer: DIV reset (sys=%04X tima=%02X)", b.tmr.SYS(), b.tmr.TIMA())
		}
		b.tmr.WriteDIV()
	case addr == 0xFF05:
		b.tmr.WriteTIMA(value)
	case addr == 0xFF06:
		b.tmr.WriteTMA(value)
	case addr == 0xFF07:
		if b.debugTimer {
			log.Printf("timer: TAC=%02X (sys=%04X)", value, b.tmr.SYS())
		}
		b.tmr.WriteTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.Write(addr, value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		// Sources above 0xDF wrap back into RAM on hardware.
		if value == 0xFF {
			value = 0xDF
		} else if value == 0xFE {
			value = 0xE0
		}
		b.dma = value
		b.dmaActive = true
		b.dmaDelay = 1
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
	case addr == 0xFF4D:
		b.speedSwitch = value&0x01 != 0
	case addr == 0xFF51:
		b.hdmaSrc = (b.hdmaSrc & 0x00FF) | uint16(value)<<8
	case addr == 0xFF52:
		b.hdmaSrc = (b.hdmaSrc & 0xFF00) | uint16(value&0xF0)
	case addr == 0xFF53:
		b.hdmaDst = (b.hdmaDst & 0x00FF) | uint16(value&0x1F)<<8
	case addr == 0xFF54:
		b.hdmaDst = (b.hdmaDst & 0xFF00) | uint16(value&0xF0)
	case addr == 0xFF55:
		b.writeHDMA5(value)
	case addr == 0xFF70:
		b.wramBank = value & 0x07
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.ie = value
	}
}

func (b *Bus) writeHDMA5(value byte) {
	if b.hdmaLen >= 0 && value&0x80 == 0 {
		// Writing with bit7=0 while an HBlank transfer is active stops it.
		b.hdmaLen = -1
		return
	}
	length := (int(value&0x7F) + 1) * 0x10
	if value&0x80 == 0 {
		// General-purpose: copy the whole block immediately.
		b.hdmaCopyBlocks(length / 0x10)
		return
	}
	b.hdmaLen = length / 0x10
	b.hdmaHBlankMode = true
}

func (b *Bus) hdmaCopyBlocks(blocks int) {
	for i := 0; i < blocks; i++ {
		for j := 0; j < 0x10; j++ {
			v := b.Read(b.hdmaSrc)
			b.ppu.CPUWrite(0x8000+(b.hdmaDst&0x1FFF), v)
			b.hdmaSrc++
			b.hdmaDst++
		}
	}
}

// JOYP button bitmasks. Bits set mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

func (b *Bus) readJoyp() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// PerformSpeedSwitch executes the CGB STOP-triggered double-speed toggle.
// The CPU calls this when STOP is executed with KEY1 bit0 armed.
func (b *Bus) PerformSpeedSwitch() {
	if !b.speedSwitch {
		return
	}
	b.doubleSpeed = !b.doubleSpeed
	b.speedSwitch = false
	b.tmr.SetDoubleSpeed(b.doubleSpeed)
}

// Tick advances the bus by one M-cycle: the timer, OAM DMA, HDMA, and the
// PPU (which runs at 4 dots per M-cycle at single speed, 2 at double speed).
// It returns true on the M-cycle a full PPU frame completes.
func (b *Bus) Tick() bool {
	b.tmr.Tick()
	b.stepOAMDMA()

	dots := 4
	if b.doubleSpeed {
		dots = 2
	}
	prevMode := b.ppu.Mode()
	frameDone := b.ppu.Tick(dots)
	newMode := b.ppu.Mode()
	if b.hdmaHBlankMode && b.hdmaLen > 0 && prevMode != newMode && newMode == ppu.ModeHBlank {
		n := 1
		if n > b.hdmaLen {
			n = b.hdmaLen
		}
		b.hdmaCopyBlocks(n)
		b.hdmaLen -= n
		if b.hdmaLen <= 0 {
			b.hdmaLen = -1
		}
	}
	b.apu.Tick(dots)
	return frameDone
}

func (b *Bus) stepOAMDMA() {
	if !b.dmaActive {
		return
	}
	if b.dmaDelay > 0 {
		b.dmaDelay--
		return
	}
	if b.dmaIndex < 0xA0 {
		v := b.Read(b.dmaSrc + uint16(b.dmaIndex))
		b.ppu.CPUWrite(0xFE00+uint16(b.dmaIndex), v)
		b.dmaIndex++
	}
	if b.dmaIndex >= 0xA0 {
		b.dmaActive = false
	}
}

func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.ifReg |= 1 << 4
	}
	b.joypLower4 = newLower
}

// --- Save/Load state ---

type busState struct {
	WRAM      [8][0x1000]byte
	WRAMBank  byte
	HRAM      [0x7F]byte
	IE, IF    byte
	JoypSel   byte
	Joypad    byte
	JoypL4    byte
	SB, SC    byte
	DMA       byte
	DMAActive bool
	DMADelay  int
	DMASrc    uint16
	DMAIdx    int
	HDMASrc   uint16
	HDMADst   uint16
	HDMALen   int
	HDMAHB    bool
	CGBMode   bool
	DblSpeed  bool
	SpdSwitch bool

	TimerState timer.State
	PPUState   []byte
	APUState   []byte
	CartState  []byte
}

func (b *Bus) SaveState() []byte {
	s := busState{
		WRAM: b.wram, WRAMBank: b.wramBank, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		SB: b.sb, SC: b.sc,
		DMA: b.dma, DMAActive: b.dmaActive, DMADelay: b.dmaDelay, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		HDMASrc: b.hdmaSrc, HDMADst: b.hdmaDst, HDMALen: b.hdmaLen, HDMAHB: b.hdmaHBlankMode,
		CGBMode: b.cgbMode, DblSpeed: b.doubleSpeed, SpdSwitch: b.speedSwitch,
		TimerState: b.tmr.SaveState(),
		PPUState:   b.ppu.SaveState(),
		APUState:   b.apu.SaveState(),
		CartState:  b.cart.SaveState(),
	}
	return gobutil.Encode(s)
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if !gobutil.Decode(data, &s) {
		return
	}
	b.wram, b.wramBank, b.hram = s.WRAM, s.WRAMBank, s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.sb, b.sc = s.SB, s.SC
	b.dma, b.dmaActive, b.dmaDelay, b.dmaSrc, b.dmaIndex = s.DMA, s.DMAActive, s.DMADelay, s.DMASrc, s.DMAIdx
	b.hdmaSrc, b.hdmaDst, b.hdmaLen, b.hdmaHBlankMode = s.HDMASrc, s.HDMADst, s.HDMALen, s.HDMAHB
	b.cgbMode, b.doubleSpeed, b.speedSwitch = s.CGBMode, s.DblSpeed, s.SpdSwitch
	b.tmr.LoadState(s.TimerState)
	b.ppu.LoadState(s.PPUState)
	b.apu.LoadState(s.APUState)
	b.cart.LoadState(s.CartState)
}
