// Package debugview renders the emulator's frame buffer into a terminal
// with tcell, two pixels per character cell via the upper-half-block glyph.
// It exists for headless environments without a GPU; the ebiten host is the
// primary frontend.
package debugview

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/cairnfall/gbccore/internal/emu"
)

const (
	frameW = 160
	frameH = 144
	// Terminals only report key presses, never releases; a pressed button
	// is held until its press is this old.
	keyHold = 120 * time.Millisecond
)

type Viewer struct {
	screen tcell.Screen
	m      *emu.Machine

	pressed map[emu.Button]time.Time
}

func New(m *emu.Machine) (*Viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack))
	screen.Clear()
	return &Viewer{
		screen:  screen,
		m:       m,
		pressed: make(map[emu.Button]time.Time),
	}, nil
}

// Run drives the machine frame by frame until the user quits.
func (v *Viewer) Run() error {
	defer v.screen.Fini()
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	rtc := time.NewTicker(time.Second)
	defer rtc.Stop()

	for {
		select {
		case <-rtc.C:
			v.m.RTCTickSecond()
		case <-ticker.C:
		}
		if !v.poll() {
			return nil
		}
		v.expireKeys()
		v.m.StepFrame()
		v.draw()
	}
}

var keyButtons = map[rune]emu.Button{
	'z': emu.BtnA,
	'x': emu.BtnB,
	' ': emu.BtnSelect,
}

func (v *Viewer) poll() bool {
	for v.screen.HasPendingEvent() {
		switch ev := v.screen.PollEvent().(type) {
		case *tcell.EventResize:
			v.screen.Sync()
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return false
			case tcell.KeyEnter:
				v.press(emu.BtnStart)
			case tcell.KeyUp:
				v.press(emu.BtnUp)
			case tcell.KeyDown:
				v.press(emu.BtnDown)
			case tcell.KeyLeft:
				v.press(emu.BtnLeft)
			case tcell.KeyRight:
				v.press(emu.BtnRight)
			case tcell.KeyRune:
				r := ev.Rune()
				if r == 'q' {
					return false
				}
				if btn, ok := keyButtons[r]; ok {
					v.press(btn)
				}
			}
		}
	}
	return true
}

func (v *Viewer) press(b emu.Button) {
	v.pressed[b] = time.Now()
	v.m.SetButton(b, true)
}

func (v *Viewer) expireKeys() {
	now := time.Now()
	for b, at := range v.pressed {
		if now.Sub(at) > keyHold {
			v.m.SetButton(b, false)
			delete(v.pressed, b)
		}
	}
}

func (v *Viewer) draw() {
	frame := v.m.CurrentFrame()
	for cy := 0; cy < frameH/2; cy++ {
		for x := 0; x < frameW; x++ {
			top := frame[cy*2][x]
			bot := frame[cy*2+1][x]
			style := tcell.StyleDefault.
				Foreground(argbColor(top)).
				Background(argbColor(bot))
			v.screen.SetContent(x, cy, '▀', nil, style)
		}
	}
	v.screen.Show()
}

func argbColor(c uint32) tcell.Color {
	return tcell.NewRGBColor(
		int32((c>>16)&0xFF),
		int32((c>>8)&0xFF),
		int32(c&0xFF),
	)
}
