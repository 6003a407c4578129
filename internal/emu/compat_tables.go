package emu

import (
	"strings"

	"github.com/cairnfall/gbccore/internal/cart"
)

// compatSet is one CGB compatibility palette: separate four-shade tables
// for the background and the two object palettes, mirroring what the CGB
// boot ROM installs for known monochrome titles.
type compatSet struct {
	name string
	bg   [4]uint32
	obj0 [4]uint32
	obj1 [4]uint32
}

var cgbCompatSets = []compatSet{
	{
		name: "Green",
		bg:   [4]uint32{0xFFFFFFFF, 0xFF52FF00, 0xFFFF4200, 0xFF000000},
		obj0: [4]uint32{0xFFFFFFFF, 0xFF52FF00, 0xFFFF4200, 0xFF000000},
		obj1: [4]uint32{0xFFFFFFFF, 0xFF52FF00, 0xFFFF4200, 0xFF000000},
	},
	{
		name: "Sepia",
		bg:   [4]uint32{0xFFFFF7C5, 0xFFCEA562, 0xFF846B29, 0xFF5A3108},
		obj0: [4]uint32{0xFFFFF7C5, 0xFFCEA562, 0xFF846B29, 0xFF5A3108},
		obj1: [4]uint32{0xFFFFF7C5, 0xFFCEA562, 0xFF846B29, 0xFF5A3108},
	},
	{
		name: "Blue",
		bg:   [4]uint32{0xFFFFFFFF, 0xFF63A5FF, 0xFF0000FF, 0xFF000000},
		obj0: [4]uint32{0xFFFFFFFF, 0xFFFF8484, 0xFF943A3A, 0xFF000000},
		obj1: [4]uint32{0xFFFFFFFF, 0xFF63A5FF, 0xFF0000FF, 0xFF000000},
	},
	{
		name: "Red",
		bg:   [4]uint32{0xFFFFFFFF, 0xFFFF8484, 0xFF943A3A, 0xFF000000},
		obj0: [4]uint32{0xFFFFFFFF, 0xFF7BFF31, 0xFF008400, 0xFF000000},
		obj1: [4]uint32{0xFFFFFFFF, 0xFF63A5FF, 0xFF0000FF, 0xFF000000},
	},
	{
		name: "Pastel",
		bg:   [4]uint32{0xFFFFFFA5, 0xFFFF9494, 0xFF9494FF, 0xFF000000},
		obj0: [4]uint32{0xFFFFFFA5, 0xFFFF9494, 0xFF9494FF, 0xFF000000},
		obj1: [4]uint32{0xFFFFFFA5, 0xFFFF9494, 0xFF9494FF, 0xFF000000},
	},
	{
		name: "Grayscale",
		bg:   [4]uint32{0xFFFFFFFF, 0xFFA5A5A5, 0xFF525252, 0xFF000000},
		obj0: [4]uint32{0xFFFFFFFF, 0xFFA5A5A5, 0xFF525252, 0xFF000000},
		obj1: [4]uint32{0xFFFFFFFF, 0xFFA5A5A5, 0xFF525252, 0xFF000000},
	},
}

// compatTitleExact maps exact normalized header titles to a palette index.
var compatTitleExact = map[string]int{
	"TETRIS":              2,
	"SUPER MARIOLAND":     3,
	"SUPER MARIO LAND":    3,
	"DR.MARIO":            4,
	"DR. MARIO":           4,
	"DONKEY KONG":         1,
	"THE LEGEND OF ZELDA": 0,
	"ZELDA":               0,
	"KIRBY DREAM LAND":    4,
	"WARIOLAND":           1,
	"POKEMON RED":         3,
	"POKEMON BLUE":        2,
	"POKEMON YELLOW":      4,
}

// compatTitleContains applies broader substring heuristics for families of
// titles sharing a look.
var compatTitleContains = []struct {
	substr string
	id     int
}{
	{"TETRIS", 2},
	{"MARIO", 3},
	{"ZELDA", 0},
	{"KIRBY", 4},
	{"DONKEY KONG", 1},
	{"METROID", 3},
	{"WARIO", 1},
	{"POKEMON", 3},
	{"POCKET MONSTERS", 3},
}

// autoCompatPaletteFromHeader picks a compatibility palette for a
// monochrome cartridge: a title-table hit first, then a stable
// checksum-keyed choice for Nintendo-published titles, grayscale otherwise.
func autoCompatPaletteFromHeader(h *cart.Header) (int, bool) {
	if h == nil {
		return 0, false
	}
	t := strings.ToUpper(strings.TrimSpace(strings.TrimRight(h.Title, "\x00")))
	if id, ok := compatTitleExact[t]; ok {
		return id, true
	}
	for _, r := range compatTitleContains {
		if strings.Contains(t, r.substr) {
			return r.id, true
		}
	}
	nintendo := h.OldLicensee == 0x01 ||
		(h.OldLicensee == 0x33 && strings.ToUpper(h.NewLicensee) == "01")
	if nintendo {
		return int(h.HeaderChecksum) % len(cgbCompatSets), true
	}
	return len(cgbCompatSets) - 1, true
}
