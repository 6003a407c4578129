package cart

// MBC3 implements ROM/RAM banking plus the RTC register window.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (0x08-0x0C)
// - 6000-7FFF: latch-clock-data write (0->1 edge copies live counters)
// - A000-BFFF: external RAM, or the selected RTC register, when enabled
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	bankSel    byte // 0..3 selects a RAM bank, 0x08..0x0C selects an RTC register

	rtc RTC
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

// TickSecond advances the cartridge's real-time clock by one second. The
// emulator calls this once per wall-clock second, independent of emulated
// CPU speed.
func (m *MBC3) TickSecond() {
	m.rtc.TickSecond()
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
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
		if m.bankSel >= 0x08 && m.bankSel <= 0x0C {
			return m.rtc.ReadRegister(m.bankSel)
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.bankSel & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.bankSel = value
	case addr < 0x8000:
		m.rtc.Latch(value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.bankSel >= 0x08 && m.bankSel <= 0x0C {
			m.rtc.WriteRegister(m.bankSel, value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.bankSel & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) SaveState() []byte {
	out := []byte{m.romBank, m.bankSel, boolByte(m.ramEnabled)}
	out = append(out, m.rtc.saveState()...)
	return append(out, m.ram...)
}

func (m *MBC3) LoadState(data []byte) {
	if len(data) < 3+rtcStateLen {
		return
	}
	m.romBank = data[0]
	m.bankSel = data[1]
	m.ramEnabled = data[2] != 0
	m.rtc.loadState(data[3:])
	copy(m.ram, data[3+rtcStateLen:])
}

// SaveRAM emits the battery file layout: the raw RAM bytes followed by the
// five live and five latched RTC counters and the last latch-port write.
func (m *MBC3) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	out = append(out,
		m.rtc.liveSeconds, m.rtc.liveMinutes, m.rtc.liveHours,
		byte(m.rtc.liveDays&0xFF), m.rtc.dayHighByte(),
		m.rtc.latchSeconds, m.rtc.latchMinutes, m.rtc.latchHours,
		m.rtc.latchDayLo, m.rtc.latchDayHi,
		m.rtc.prevLatchWrite,
	)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	n := copy(m.ram, data)
	rest := data[n:]
	if len(rest) < 11 {
		return
	}
	m.rtc.liveSeconds = rest[0] % 60
	m.rtc.liveMinutes = rest[1] % 60
	m.rtc.liveHours = rest[2] % 24
	m.rtc.liveDays = uint16(rest[3]) | uint16(rest[4]&0x01)<<8
	m.rtc.halt = rest[4]&0x40 != 0
	m.rtc.carry = rest[4]&0x80 != 0
	m.rtc.latchSeconds = rest[5]
	m.rtc.latchMinutes = rest[6]
	m.rtc.latchHours = rest[7]
	m.rtc.latchDayLo = rest[8]
	m.rtc.latchDayHi = rest[9]
	m.rtc.prevLatchWrite = rest[10]
	m.rtc.haveLatchWrite = true
}
