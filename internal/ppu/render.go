package ppu

import "sort"

var dmgPalette = [4]uint32{0xFFE0F8D0, 0xFF88C070, 0xFF346856, 0xFF081820}

// scanOAM selects up to 10 sprites visible on the current line, in OAM
// order, then stably sorts them by X so the leftmost sprite of equal X
// draws on top (DMG priority; CGB instead uses pure OAM order, handled by
// the stable sort leaving ties in original order).
func (p *PPU) scanOAM() []object {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	out := make([]object, 0, 10)
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		y := p.oam[base]
		screenY := int(y) - 16
		if int(p.ly) < screenY || int(p.ly) >= screenY+height {
			continue
		}
		out = append(out, object{
			y:        y,
			x:        p.oam[base+1],
			tile:     p.oam[base+2],
			attr:     p.oam[base+3],
			oamIndex: i,
		})
	}
	if !p.cgbMode {
		sort.SliceStable(out, func(a, b int) bool { return out[a].x < out[b].x })
	}
	return out
}

// renderLine composites the BG, window, and OBJ layers for the current
// scanline into the frame buffer, applying the CGB BG-to-OBJ priority
// truth table when running in CGB mode.
func (p *PPU) renderLine() {
	y := int(p.ly)
	if y < 0 || y >= screenHeight {
		return
	}

	// The first frame after the LCD turns on is not displayed by hardware;
	// render it as the blank enabled-screen color instead.
	if p.frameDelay {
		for x := 0; x < screenWidth; x++ {
			p.frame[y][x] = p.bgShades[0]
		}
		return
	}

	var bgIdx [screenWidth]byte
	var bgPrio [screenWidth]bool
	var bgPal [screenWidth]byte

	bgEnabled := p.lcdc&0x01 != 0 || p.cgbMode
	if bgEnabled {
		p.renderBGWindow(y, &bgIdx, &bgPrio, &bgPal)
	}

	for x := 0; x < screenWidth; x++ {
		p.frame[y][x] = p.bgColor(bgIdx[x], bgPal[x])
	}

	if p.lcdc&0x02 != 0 {
		p.renderObjects(y, &bgIdx, &bgPrio)
	}
}

func (p *PPU) renderBGWindow(y int, idx *[screenWidth]byte, prio *[screenWidth]bool, pal *[screenWidth]byte) {
	windowActive := p.lcdc&0x20 != 0 && p.wy <= byte(y) && p.wx < 167
	if windowActive {
		p.windowLine++
	}
	winLineCounter := p.windowLine

	for x := 0; x < screenWidth; x++ {
		useWindow := windowActive && x+7 >= int(p.wx)
		var mapBase uint16
		var tx, ty int
		if useWindow {
			if p.lcdc&0x40 != 0 {
				mapBase = 0x9C00
			} else {
				mapBase = 0x9800
			}
			tx = (x + 7 - int(p.wx)) / 8
			ty = winLineCounter / 8
		} else {
			if p.lcdc&0x08 != 0 {
				mapBase = 0x9C00
			} else {
				mapBase = 0x9800
			}
			scrolledX := (x + int(p.scx)) & 0xFF
			scrolledY := (y + int(p.scy)) & 0xFF
			tx = scrolledX / 8
			ty = scrolledY / 8
		}

		mapAddr := mapBase + uint16(ty)*32 + uint16(tx)
		tileNum := p.vram[0][mapAddr-0x8000]
		attr := byte(0)
		if p.cgbMode {
			attr = p.vram[1][mapAddr-0x8000]
		}

		var fineY int
		if useWindow {
			fineY = winLineCounter % 8
		} else {
			fineY = (y + int(p.scy)) % 8
		}
		if attr&0x40 != 0 { // vertical flip
			fineY = 7 - fineY
		}

		var base uint16
		tileBank := byte(0)
		if attr&0x08 != 0 {
			tileBank = 1
		}
		if p.lcdc&0x10 != 0 {
			base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
		} else {
			base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
		}
		lo := p.vram[tileBank][base-0x8000]
		hi := p.vram[tileBank][base+1-0x8000]

		var fineX int
		if useWindow {
			fineX = (x + 7 - int(p.wx)) % 8
		} else {
			fineX = (x + int(p.scx)) % 8
		}
		if attr&0x20 != 0 { // horizontal flip
			fineX = 7 - fineX
		}
		bit := 7 - byte(fineX)
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)

		idx[x] = ci
		pal[x] = attr & 0x07
		prio[x] = attr&0x80 != 0
	}
}

func (p *PPU) renderObjects(y int, bgIdx *[screenWidth]byte, bgPrio *[screenWidth]bool) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	// Draw back-to-front so that the first sprite in priority order ends up
	// on top when pixels overlap.
	for i := len(p.objects) - 1; i >= 0; i-- {
		obj := p.objects[i]
		screenY := int(obj.y) - 16
		screenX := int(obj.x) - 8
		row := y - screenY
		if obj.attr&0x40 != 0 {
			row = height - 1 - row
		}
		tile := obj.tile
		if height == 16 {
			tile &^= 0x01
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		bank := byte(0)
		if p.cgbMode && obj.attr&0x08 != 0 {
			bank = 1
		}
		base := uint16(tile)*16 + uint16(row)*2
		lo := p.vram[bank][base]
		hi := p.vram[bank][base+1]

		for px := 0; px < 8; px++ {
			sx := screenX + px
			if sx < 0 || sx >= screenWidth {
				continue
			}
			col := px
			if obj.attr&0x20 != 0 {
				col = 7 - px
			}
			bit := 7 - byte(col)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}

			bgHasPriority := false
			if p.cgbMode {
				if p.lcdc&0x01 != 0 {
					bgHasPriority = (obj.attr&0x80 != 0 || bgPrio[sx]) && bgIdx[sx] != 0
				}
			} else if obj.attr&0x80 != 0 {
				bgHasPriority = bgIdx[sx] != 0
			}
			if bgHasPriority {
				continue
			}

			var palIdx byte
			if p.cgbMode {
				palIdx = obj.attr & 0x07
				p.frame[y][sx] = p.objColorCGB(ci, palIdx)
			} else {
				if obj.attr&0x10 != 0 {
					p.frame[y][sx] = p.objColorDMG(ci, p.obp1, &p.obj1Shades)
				} else {
					p.frame[y][sx] = p.objColorDMG(ci, p.obp0, &p.obj0Shades)
				}
			}
		}
	}
}

func (p *PPU) bgColor(ci, pal byte) uint32 {
	if p.cgbMode {
		return p.cgbColor(p.bgPalRAM[:], pal, ci)
	}
	shade := (p.bgp >> (ci * 2)) & 0x03
	return p.bgShades[shade]
}

func (p *PPU) objColorDMG(ci, obp byte, shades *[4]uint32) uint32 {
	shade := (obp >> (ci * 2)) & 0x03
	return shades[shade]
}

func (p *PPU) objColorCGB(ci, pal byte) uint32 {
	return p.cgbColor(p.objPalRAM[:], pal, ci)
}

func (p *PPU) cgbColor(ram []byte, pal, ci byte) uint32 {
	off := int(pal)*8 + int(ci)*2
	lo := ram[off]
	hi := ram[off+1]
	word := uint16(lo) | uint16(hi)<<8
	r := byte(word&0x1F) << 3
	g := byte((word>>5)&0x1F) << 3
	b := byte((word>>10)&0x1F) << 3
	return 0xFF000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}
