package ppu

import "testing"

func TestBGTileRendersThroughPalette(t *testing.T) {
	p := New(nil)
	// Tile 1 at map (0,0): solid color index 3 on every pixel (lo=hi=0xFF).
	p.vram[0][0x9800-0x8000] = 1 // map entry at 0x9800
	base := 0x8000 + 1*16
	p.vram[0][base-0x8000] = 0xFF
	p.vram[0][base+1-0x8000] = 0xFF
	p.lcdc = 0x91 // LCD on, BG on, 0x8000 addressing, 0x9800 map
	p.bgp = 0xE4  // identity palette
	p.renderLine()
	if p.frame[0][0] != dmgPalette[3] {
		t.Fatalf("got %08X want shade 3 (%08X)", p.frame[0][0], dmgPalette[3])
	}
}

func TestObjectDrawnOverTransparentBG(t *testing.T) {
	p := New(nil)
	p.lcdc = 0x80 | 0x02 // LCD on, OBJ on, BG off
	p.obp0 = 0xE4
	// Sprite tile 0, single opaque leftmost pixel (bit7 set in lo byte).
	p.vram[0][0] = 0x80
	p.vram[0][1] = 0x00
	p.oam[0] = 16 // Y: screenY = 0
	p.oam[1] = 16 // X: screenX = 8, leftmost pixel at sx=8
	p.oam[2] = 0  // tile
	p.oam[3] = 0  // attr
	p.objects = p.scanOAM()
	p.renderLine()
	if p.frame[0][8] == dmgPalette[0] {
		t.Fatalf("expected sprite pixel to override background at x=8")
	}
}

func TestObjectHiddenBehindBGWhenPriorityBitSet(t *testing.T) {
	p := New(nil)
	p.lcdc = 0x91 | 0x02
	p.bgp, p.obp0 = 0xE4, 0xE4
	p.vram[0][0x9800-0x8000] = 1
	base := 0x8000 + 1*16
	p.vram[0][base-0x8000] = 0xFF
	p.vram[0][base+1-0x8000] = 0xFF // BG color index 3 across the row

	p.vram[0][16] = 0x80 // sprite tile 1, leftmost pixel opaque
	p.oam[0] = 16
	p.oam[1] = 8 // screenX = 0
	p.oam[2] = 1
	p.oam[3] = 0x80 // BG-over-OBJ priority
	p.objects = p.scanOAM()
	p.renderLine()
	if p.frame[0][0] != dmgPalette[3] {
		t.Fatalf("expected BG to win when OBJ priority bit set and BG pixel nonzero")
	}
}

func TestCGBColorConversion(t *testing.T) {
	p := NewCGB(nil, true)
	// palette 0, color 0: RGB555 all-max (0x7FFF) -> near-white opaque pixel.
	p.bgPalRAM[0] = 0xFF
	p.bgPalRAM[1] = 0x7F
	got := p.cgbColor(p.bgPalRAM[:], 0, 0)
	if got&0xFF000000 != 0xFF000000 {
		t.Fatalf("expected opaque alpha, got %08X", got)
	}
	if got != 0xFFF8F8F8 {
		t.Fatalf("got %08X want FFF8F8F8", got)
	}
}
