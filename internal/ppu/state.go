package ppu

import "github.com/cairnfall/gbccore/internal/gobutil"

// State is the serializable snapshot of the PPU used by save states.
type State struct {
	CGBMode bool

	VRAM     [2][0x2000]byte
	VRAMBank byte
	OAM      [0xA0]byte

	LCDC, Stat      byte
	SCY, SCX        byte
	LY, LYC         byte
	WY, WX          byte
	BGP, OBP0, OBP1 byte

	BGPalRAM   [64]byte
	ObjPalRAM  [64]byte
	BGPI, OBPI byte

	Dot, Penalty int
	WindowLine   int
	FrameDelay   bool
}

func (p *PPU) SaveState() []byte {
	s := State{
		CGBMode: p.cgbMode, VRAM: p.vram, VRAMBank: p.vramBank, OAM: p.oam,
		LCDC: p.lcdc, Stat: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		WY: p.wy, WX: p.wx, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		BGPalRAM: p.bgPalRAM, ObjPalRAM: p.objPalRAM, BGPI: p.bgpi, OBPI: p.obpi,
		Dot: p.dot, Penalty: p.penalty, WindowLine: p.windowLine, FrameDelay: p.frameDelay,
	}
	return gobutil.Encode(s)
}

func (p *PPU) LoadState(data []byte) {
	var s State
	if !gobutil.Decode(data, &s) {
		return
	}
	p.cgbMode = s.CGBMode
	p.vram = s.VRAM
	p.vramBank = s.VRAMBank
	p.oam = s.OAM
	p.lcdc, p.stat = s.LCDC, s.Stat
	p.scy, p.scx = s.SCY, s.SCX
	p.ly, p.lyc = s.LY, s.LYC
	p.wy, p.wx = s.WY, s.WX
	p.bgp, p.obp0, p.obp1 = s.BGP, s.OBP0, s.OBP1
	p.bgPalRAM, p.objPalRAM = s.BGPalRAM, s.ObjPalRAM
	p.bgpi, p.obpi = s.BGPI, s.OBPI
	p.dot, p.penalty, p.windowLine, p.frameDelay = s.Dot, s.Penalty, s.WindowLine, s.FrameDelay
}
