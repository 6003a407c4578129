package cart

import "testing"

func TestMBC2_BuiltinRAM_NibbleWrap(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC2(rom)

	// RAM-enable write: address bit 8 clear selects the enable latch.
	m.Write(0x0000, 0x0A)

	m.Write(0xA000, 0xF7)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("nibble read got %02X want FF (low nibble 7, high forced)", got)
	}

	// Bank selection uses address bit 8 set.
	m.Write(0x2100, 0x05)
	if got := m.Read(0x4000); got == 0 {
		t.Fatalf("expected bank switch to take effect")
	}
}

func TestMBC2_RAMDisabledReadsFF(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := NewMBC2(rom)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
}
