package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cairnfall/gbccore/internal/emu"
	"github.com/cairnfall/gbccore/internal/ui"
)

func savePathFor(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb/.gbc)")
	scale := flag.Int("scale", 3, "window scale")
	title := flag.String("title", "gbemu", "window title")
	forceDMG := flag.Bool("dmg", false, "force DMG mode for CGB-flagged cartridges")
	compat := flag.Bool("colorize", false, "apply CGB compatibility palettes to monochrome cartridges")
	persist := flag.Bool("save", true, "persist battery RAM to <rom>.sav")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}

	m := emu.New(emu.Config{
		ForceDMG:       *forceDMG,
		CompatPalettes: *compat,
		SampleRate:     48000,
	})
	if err := m.LoadFile(*romPath); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	h := m.Header()
	log.Printf("ROM: %q type=%s banks=%d ram=%dB cgb=%v",
		h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes, m.CGB())

	savPath := ""
	if *persist {
		savPath = savePathFor(*romPath)
		if data, err := os.ReadFile(savPath); err == nil {
			m.LoadRAM(data)
			log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
		}
	}

	app := ui.NewApp(ui.Config{Title: *title, Scale: *scale, CompatPalettes: *compat}, m, *romPath)
	err := app.Run()
	app.SaveSettings()

	if savPath != "" {
		if data := m.SaveRAM(); len(data) > 0 {
			if werr := os.WriteFile(savPath, data, 0o644); werr == nil {
				log.Printf("wrote %s", savPath)
			}
		}
	}
	if err != nil {
		log.Fatal(err)
	}
}
