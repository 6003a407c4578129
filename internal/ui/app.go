// Package ui hosts the emulator in an ebiten window: frame presentation,
// keyboard-to-keypad mapping, audio playback, and save-state slots. The
// core itself has no idea any of this exists.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cairnfall/gbccore/internal/emu"
)

const (
	screenW = 160
	screenH = 144
)

type App struct {
	cfg Config
	m   *emu.Machine

	tex *ebiten.Image
	pix []byte // RGBA staging buffer for WritePixels

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	muted       bool

	paused bool
	turbo  bool

	currentSlot int
	statePath   string // save-state path stem, slot number appended

	lastRTC time.Time

	toastMsg   string
	toastUntil time.Time
}

func NewApp(cfg Config, m *emu.Machine, statePath string) *App {
	cfg = loadSettings(cfg)
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(screenW*cfg.Scale, screenH*cfg.Scale)
	a := &App{
		cfg:       cfg,
		m:         m,
		tex:       ebiten.NewImage(screenW, screenH),
		pix:       make([]byte, screenW*screenH*4),
		statePath: statePath,
		lastRTC:   time.Now(),
	}
	a.audioCtx = audio.NewContext(48000)
	return a
}

func (a *App) Run() error {
	ebiten.SetTPS(60)
	return ebiten.RunGame(a)
}

var keypadKeys = []struct {
	key ebiten.Key
	btn emu.Button
}{
	{ebiten.KeyZ, emu.BtnA},
	{ebiten.KeyX, emu.BtnB},
	{ebiten.KeyBackspace, emu.BtnSelect},
	{ebiten.KeyEnter, emu.BtnStart},
	{ebiten.KeyArrowRight, emu.BtnRight},
	{ebiten.KeyArrowLeft, emu.BtnLeft},
	{ebiten.KeyArrowUp, emu.BtnUp},
	{ebiten.KeyArrowDown, emu.BtnDown},
}

func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.muted = !a.muted
	}
	a.turbo = ebiten.IsKeyPressed(ebiten.KeySpace)

	for _, k := range keypadKeys {
		a.m.SetButton(k.btn, ebiten.IsKeyPressed(k.key))
	}
	a.handleSlotKeys()

	if a.audioPlayer == nil {
		src := &apuStream{m: a.m, muted: &a.muted}
		p, err := a.audioCtx.NewPlayer(src)
		if err == nil {
			p.SetBufferSize(time.Duration(a.cfg.AudioBufferMs) * time.Millisecond)
			a.audioPlayer = p
			p.Play()
		}
	}

	if now := time.Now(); now.Sub(a.lastRTC) >= time.Second {
		a.lastRTC = a.lastRTC.Add(time.Second)
		a.m.RTCTickSecond()
	}

	if a.paused || !a.m.Loaded() {
		return nil
	}
	frames := 1
	if a.turbo {
		frames = 4
	}
	for i := 0; i < frames; i++ {
		a.m.StepFrame()
	}
	if a.turbo {
		// Turbo outruns the audio clock; drop what piled up.
		a.m.Bus().APU().PullStereo(1 << 16)
	}
	return nil
}

func (a *App) handleSlotKeys() {
	for i, k := range []ebiten.Key{ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4} {
		if inpututil.IsKeyJustPressed(k) {
			a.currentSlot = i
			a.toast(fmt.Sprintf("slot %d", i+1))
		}
	}
	if a.statePath == "" || !a.m.Loaded() {
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if data := a.m.SaveState(); data != nil {
			path := fmt.Sprintf("%s.state%d", a.statePath, a.currentSlot+1)
			if err := os.WriteFile(path, data, 0o644); err == nil {
				a.toast(fmt.Sprintf("saved slot %d", a.currentSlot+1))
			}
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF7) {
		path := fmt.Sprintf("%s.state%d", a.statePath, a.currentSlot+1)
		if data, err := os.ReadFile(path); err == nil && a.m.LoadState(data) {
			a.toast(fmt.Sprintf("loaded slot %d", a.currentSlot+1))
		}
	}
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *App) Draw(screen *ebiten.Image) {
	frame := a.m.CurrentFrame()
	i := 0
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			c := frame[y][x]
			a.pix[i+0] = byte(c >> 16)
			a.pix[i+1] = byte(c >> 8)
			a.pix[i+2] = byte(c)
			a.pix[i+3] = byte(c >> 24)
			i += 4
		}
	}
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)

	if a.paused {
		ebitenutil.DebugPrint(screen, "paused")
	} else if a.turbo {
		ebitenutil.DebugPrint(screen, "turbo")
	}
	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 0, screenH-16)
	}
}

func (a *App) Layout(_, _ int) (int, int) { return screenW, screenH }
