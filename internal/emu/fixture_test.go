package emu

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// findROMs recursively collects .gb/.gbc files under dir.
func findROMs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		low := strings.ToLower(d.Name())
		if strings.HasSuffix(low, ".gb") || strings.HasSuffix(low, ".gbc") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// runTestROM executes a fixture ROM until it reports through the serial
// port or the frame budget runs out.
func runTestROM(t *testing.T, romPath string, maxFrames int) {
	t.Helper()
	m := New(Config{})
	var buf bytes.Buffer
	m.SetSerialWriter(&buf)
	if err := m.LoadFile(romPath); err != nil {
		t.Fatalf("load ROM: %v", err)
	}
	for i := 0; i < maxFrames; i++ {
		m.StepFrame()
		out := buf.String()
		if strings.Contains(strings.ToLower(out), "passed") {
			return
		}
		if strings.Contains(strings.ToLower(out), "failed") {
			t.Fatalf("%s reported failure:\n%s", filepath.Base(romPath), out)
		}
	}
	t.Fatalf("timeout waiting for serial 'Passed' in %s; last output:\n%s",
		filepath.Base(romPath), buf.String())
}

// TestFixtureROMs scans testroms/ (or FIXTURE_ROM_DIR) and runs every image
// found. Opt-in via RUN_FIXTURE_ROMS to keep default test runs fast.
func TestFixtureROMs(t *testing.T) {
	if os.Getenv("RUN_FIXTURE_ROMS") == "" {
		t.Skip("set RUN_FIXTURE_ROMS=1 and place ROMs under testroms/ or set FIXTURE_ROM_DIR to run")
	}
	base := os.Getenv("FIXTURE_ROM_DIR")
	if base == "" {
		base = filepath.Join("..", "..", "testroms")
	}
	if _, err := os.Stat(base); err != nil {
		t.Skipf("fixture ROM dir missing: %s", base)
	}
	roms, err := findROMs(base)
	if err != nil {
		t.Fatalf("scan ROMs: %v", err)
	}
	if len(roms) == 0 {
		t.Skipf("no ROMs found in %s", base)
	}
	maxFrames := 1800
	if v := os.Getenv("FIXTURE_MAX_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxFrames = n
		}
	}
	for _, rom := range roms {
		name := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
		t.Run(name, func(t *testing.T) { runTestROM(t, rom, maxFrames) })
	}
}
