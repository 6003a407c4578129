package emu

// Config carries the settings that affect emulation itself; presentation
// settings live with the host.
type Config struct {
	ForceDMG       bool // run CGB-flagged cartridges in DMG mode
	CompatPalettes bool // colorize monochrome cartridges like the CGB boot ROM would
	SampleRate     int  // host audio sample rate, defaults to 48000
}
