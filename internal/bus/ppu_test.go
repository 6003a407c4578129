package bus

import (
	"testing"

	"github.com/cairnfall/gbccore/internal/cart"
)

func newBlankCart() cart.Cartridge { return cart.NewROMOnly(make([]byte, 0x8000)) }

// tickDots advances the bus by n PPU dots, n must be a multiple of 4 (the
// number of dots a single-speed M-cycle covers).
func tickDots(b *Bus, n int) {
	for i := 0; i < n/4; i++ {
		b.Tick()
	}
}

func TestPPU_STAT_HBlankInterrupt(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	b.Write(0xFF41, 1<<3)
	b.Write(0xFF0F, 0)
	tickDots(b, 80+172)
	if b.Read(0xFF0F)&(1<<1) == 0 {
		t.Fatalf("expected STAT IF on HBlank mode change")
	}
}

func TestPPU_LYC_InterruptAndFlag(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	b.Write(0xFF41, 1<<6)
	b.Write(0xFF45, 0x01)
	b.Write(0xFF0F, 0)
	tickDots(b, 456)
	if b.Read(0xFF0F)&(1<<1) == 0 {
		t.Fatalf("expected STAT IF on LYC=LY match at LY=1")
	}
	if b.Read(0xFF41)&(1<<2) == 0 {
		t.Fatalf("expected STAT coincidence flag set when LY==LYC")
	}
}

func TestPPU_VRAM_OAM_AccessRestrictions(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	tickDots(b, 80+172) // mode 0
	b.Write(0x8000, 0x11)
	b.Write(0xFE00, 0x22)
	tickDots(b, 456-252) // new line start, mode 2
	tickDots(b, 80)      // mode 3
	b.Write(0x8000, 0xAA)
	b.Write(0xFE00, 0xBB)
	if got := b.Read(0x8000); got != 0xFF {
		t.Fatalf("VRAM read during mode3 got %02X want FF", got)
	}
	if got := b.Read(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during mode3 got %02X want FF", got)
	}
	tickDots(b, 172)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM value changed despite blocked write: got %02X want 11", got)
	}
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM value changed despite blocked write: got %02X want 22", got)
	}
}

func TestBus_OAMDMA_StepwiseAndBlocking(t *testing.T) {
	b := New(make([]byte, 0x8000))
	for i := 0; i < 0xA0; i++ {
		b.Write(0xC000+uint16(i), byte(i))
	}
	b.Write(0xFF46, 0xC0)
	if got := b.Read(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during DMA got %02X want FF", got)
	}
	b.Write(0xFE00, 0xEE) // ignored while DMA active

	// DMA copies one byte per M-cycle after a 1 M-cycle start delay: 161
	// M-cycles to fully land all 160 bytes.
	for i := 0; i < 80; i++ {
		b.Tick()
	}
	if got := b.Read(0xFE10); got != 0xFF {
		t.Fatalf("mid-DMA OAM read got %02X want FF", got)
	}
	for i := 0; i < 85; i++ {
		b.Tick()
	}
	for i := 0; i < 0xA0; i++ {
		if got := b.Read(0xFE00 + uint16(i)); got != byte(i) {
			t.Fatalf("OAM[%02X] got %02X want %02X", i, got, byte(i))
		}
	}
	b.Write(0xFE00, 0x99)
	if got := b.Read(0xFE00); got != 0x99 {
		t.Fatalf("OAM write post-DMA failed: got %02X", got)
	}
}

func TestPPU_ModeSequenceVisibleLine(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	if mode := b.Read(0xFF41) & 0x03; mode != 2 {
		t.Fatalf("mode at start got %d want 2", mode)
	}
	tickDots(b, 80)
	if mode := b.Read(0xFF41) & 0x03; mode != 3 {
		t.Fatalf("mode at dot80 got %d want 3", mode)
	}
	tickDots(b, 172)
	if mode := b.Read(0xFF41) & 0x03; mode != 0 {
		t.Fatalf("mode at dot252 got %d want 0", mode)
	}
	tickDots(b, 456-252)
	if ly := b.Read(0xFF44); ly != 1 {
		t.Fatalf("LY after 1 line got %d want 1", ly)
	}
	if mode := b.Read(0xFF41) & 0x03; mode != 2 {
		t.Fatalf("mode at new line got %d want 2", mode)
	}
}

func TestPPU_VBlankDurationAndIF(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	b.Write(0xFF0F, 0)
	tickDots(b, 144*456)
	if ly := b.Read(0xFF44); ly != 144 {
		t.Fatalf("LY at vblank start got %d want 144", ly)
	}
	if mode := b.Read(0xFF41) & 0x03; mode != 1 {
		t.Fatalf("mode at vblank start got %d want 1", mode)
	}
	if b.Read(0xFF0F)&0x01 == 0 {
		t.Fatalf("VBlank IF not set on entering vblank")
	}
	tickDots(b, 10*456)
	if ly := b.Read(0xFF44); ly != 0 {
		t.Fatalf("LY after vblank wrap got %d want 0", ly)
	}
}

func TestPPU_STAT_VBlankInterruptEnable(t *testing.T) {
	b := New(make([]byte, 0x8000))
	b.Write(0xFF40, 0x80)
	b.Write(0xFF0F, 0)
	b.Write(0xFF41, 0)
	tickDots(b, 144*456)
	if b.Read(0xFF0F)&0x01 == 0 {
		t.Fatalf("VBlank IF not set")
	}
	if b.Read(0xFF0F)&0x02 != 0 {
		t.Fatalf("STAT IF set unexpectedly when disabled")
	}
	b.Write(0xFF0F, 0)
	b.Write(0xFF41, 1<<4)
	tickDots(b, 154*456)
	if b.Read(0xFF0F)&0x02 == 0 {
		t.Fatalf("STAT IF not set on VBlank when enabled")
	}
}
