package cart

// MBC2 implements the MBC2 mapper: up to 256KB ROM and a built-in 512x4-bit
// RAM chip addressed by the low 9 bits of the external-RAM address. Every
// stored nibble reads back with its upper four bits forced high.
type MBC2 struct {
	rom []byte
	ram [512]byte // only the low nibble of each entry is meaningful

	ramEnabled bool
	romBank    byte // 4 bits (1..15)
}

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return m.ram[addr&0x1FF] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		// Address bit 8 selects between RAM-enable (0) and ROM-bank (1)
		// semantics for writes in the 0x0000-0x3FFF window.
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			v := value & 0x0F
			if v == 0 {
				v = 1
			}
			m.romBank = v
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
	}
}

func (m *MBC2) SaveState() []byte {
	out := []byte{m.romBank, boolByte(m.ramEnabled)}
	return append(out, m.ram[:]...)
}

func (m *MBC2) LoadState(data []byte) {
	if len(data) < 2 {
		return
	}
	m.romBank = data[0]
	m.ramEnabled = data[1] != 0
	copy(m.ram[:], data[2:])
}

func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	copy(m.ram[:], data)
}
