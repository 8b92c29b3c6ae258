// Package gui is the desktop dashboard: configure a booking session,
// start or stop it, follow the session state while it runs, and review
// the per-attempt results once it finishes.
package gui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"sync"
	"time"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"go.uber.org/zap"

	"ticket-agent/internal/agent"
	"ticket-agent/internal/config"
	"ticket-agent/internal/scraper"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

var (
	// Dracula + Nord inspired scheme, same palette as the rest of the
	// tooling family.
	bgColor       = color.NRGBA{R: 22, G: 24, B: 35, A: 255}
	sidebarBg     = color.NRGBA{R: 28, G: 30, B: 42, A: 255}
	cardBg        = color.NRGBA{R: 36, G: 39, B: 54, A: 255}
	borderColor   = color.NRGBA{R: 59, G: 66, B: 82, A: 255}
	textColor     = color.NRGBA{R: 229, G: 233, B: 240, A: 255}
	accentColor   = color.NRGBA{R: 136, G: 192, B: 208, A: 255}
	successColor  = color.NRGBA{R: 163, G: 190, B: 140, A: 255}
	runningColor  = color.NRGBA{R: 235, G: 203, B: 139, A: 255}
	dangerColor   = color.NRGBA{R: 191, G: 97, B: 106, A: 255}
	disabledColor = color.NRGBA{R: 129, G: 137, B: 153, A: 255}
)

// GUI drives the dashboard window around one session runner.
type GUI struct {
	th     *material.Theme
	w      *app.Window
	cfg    *config.Config
	runner *agent.Runner
	log    *zap.Logger

	urlEditor     widget.Editor
	ticketsEditor widget.Editor
	nameEditor    widget.Editor
	emailEditor   widget.Editor
	phoneEditor   widget.Editor
	headlessCheck widget.Bool

	runBtn     widget.Clickable
	reportBtn  widget.Clickable
	resultList widget.List

	mu     sync.Mutex
	notice string
}

// New builds the dashboard around a configured runner.
func New(cfg *config.Config, runner *agent.Runner, log *zap.Logger) *GUI {
	th := material.NewTheme()
	th.Palette.Bg = bgColor
	th.Palette.Fg = textColor

	g := &GUI{th: th, cfg: cfg, runner: runner, log: log}
	g.resultList.Axis = layout.Vertical

	for _, ed := range []*widget.Editor{
		&g.urlEditor, &g.ticketsEditor, &g.nameEditor, &g.emailEditor, &g.phoneEditor,
	} {
		ed.SingleLine = true
	}
	g.urlEditor.SetText(cfg.TargetURL)
	g.ticketsEditor.SetText(strconv.Itoa(cfg.TicketCount))
	g.nameEditor.SetText(cfg.UserName)
	g.emailEditor.SetText(cfg.UserEmail)
	g.phoneEditor.SetText(cfg.UserPhone)
	g.headlessCheck.Value = cfg.HeadlessBrowser

	return g
}

// Run opens the window and blocks until it closes.
func (g *GUI) Run() {
	g.w = new(app.Window)
	g.w.Option(
		app.Title("Ticket Agent"),
		app.Size(unit.Dp(1000), unit.Dp(680)),
	)

	go func() {
		if err := g.loop(); err != nil {
			g.log.Fatal("gui loop failed", zap.Error(err))
		}
		// app.Main never returns; the window closing ends the process.
		os.Exit(0)
	}()
	app.Main()
}

func (g *GUI) loop() error {
	var ops op.Ops
	for {
		switch e := g.w.Event().(type) {
		case app.DestroyEvent:
			g.runner.Stop()
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			g.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (g *GUI) Layout(gtx C) D {
	paint.Fill(gtx.Ops, bgColor)
	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
		layout.Rigid(func(gtx C) D { return g.layoutSidebar(gtx) }),
		layout.Flexed(1, func(gtx C) D { return g.layoutMain(gtx) }),
	)
}

func (g *GUI) layoutSidebar(gtx C) D {
	gtx.Constraints.Max.X = gtx.Dp(unit.Dp(320))
	gtx.Constraints.Min.X = gtx.Constraints.Max.X

	paint.FillShape(gtx.Ops, sidebarBg, clip.Rect{Max: gtx.Constraints.Max}.Op())

	return layout.UniformInset(unit.Dp(20)).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				label := material.H5(g.th, "🎫 Ticket Agent")
				label.Color = accentColor
				return layout.Inset{Bottom: unit.Dp(24)}.Layout(gtx, label.Layout)
			}),
			layout.Rigid(g.field("Target URL", &g.urlEditor)),
			layout.Rigid(g.field("Tickets", &g.ticketsEditor)),
			layout.Rigid(g.field("Name", &g.nameEditor)),
			layout.Rigid(g.field("Email", &g.emailEditor)),
			layout.Rigid(g.field("Phone", &g.phoneEditor)),
			layout.Rigid(func(gtx C) D {
				cb := material.CheckBox(g.th, &g.headlessCheck, "Headless browser")
				cb.Color = textColor
				return layout.Inset{Top: unit.Dp(8), Bottom: unit.Dp(16)}.Layout(gtx, cb.Layout)
			}),
			layout.Rigid(func(gtx C) D { return g.layoutRunButton(gtx) }),
			layout.Rigid(func(gtx C) D { return g.layoutReportButton(gtx) }),
			layout.Rigid(func(gtx C) D {
				g.mu.Lock()
				notice := g.notice
				g.mu.Unlock()
				if notice == "" {
					return D{}
				}
				label := material.Body2(g.th, notice)
				label.Color = dangerColor
				return layout.Inset{Top: unit.Dp(12)}.Layout(gtx, label.Layout)
			}),
		)
	})
}

func (g *GUI) field(name string, ed *widget.Editor) layout.Widget {
	return func(gtx C) D {
		return layout.Inset{Bottom: unit.Dp(10)}.Layout(gtx, func(gtx C) D {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx C) D {
					label := material.Body2(g.th, name)
					label.Color = disabledColor
					label.TextSize = unit.Sp(12)
					return layout.Inset{Bottom: unit.Dp(4)}.Layout(gtx, label.Layout)
				}),
				layout.Rigid(func(gtx C) D {
					border := widget.Border{
						Color:        borderColor,
						CornerRadius: unit.Dp(6),
						Width:        unit.Dp(1),
					}
					return border.Layout(gtx, func(gtx C) D {
						return layout.UniformInset(unit.Dp(8)).Layout(gtx,
							material.Editor(g.th, ed, "").Layout)
					})
				}),
			)
		})
	}
}

func (g *GUI) layoutRunButton(gtx C) D {
	running := g.runner.Status().IsRunning

	if g.runBtn.Clicked(gtx) {
		if running {
			go g.runner.Stop()
		} else {
			g.startSession()
		}
		g.w.Invalidate()
	}

	label := "▶ Start Booking"
	bg := accentColor
	if running {
		label = "■ Stop"
		bg = dangerColor
	}
	btn := material.Button(g.th, &g.runBtn, label)
	btn.Background = bg
	btn.Color = bgColor
	btn.CornerRadius = unit.Dp(8)
	return layout.Inset{Top: unit.Dp(8)}.Layout(gtx, btn.Layout)
}

func (g *GUI) layoutReportButton(gtx C) D {
	if g.reportBtn.Clicked(gtx) {
		if path, err := g.runner.SaveReport(""); err != nil {
			g.setNotice(fmt.Sprintf("report failed: %v", err))
		} else {
			g.setNotice("report saved: " + path)
		}
		g.w.Invalidate()
	}
	btn := material.Button(g.th, &g.reportBtn, "Save Report")
	btn.Background = cardBg
	btn.Color = textColor
	btn.CornerRadius = unit.Dp(8)
	return layout.Inset{Top: unit.Dp(8)}.Layout(gtx, btn.Layout)
}

// startSession copies the editors into the config and launches the
// runner, then keeps the window refreshing while the session lives.
func (g *GUI) startSession() {
	g.cfg.TargetURL = g.urlEditor.Text()
	g.cfg.UserName = g.nameEditor.Text()
	g.cfg.UserEmail = g.emailEditor.Text()
	g.cfg.UserPhone = g.phoneEditor.Text()
	g.cfg.HeadlessBrowser = g.headlessCheck.Value
	if n, err := strconv.Atoi(g.ticketsEditor.Text()); err == nil {
		g.cfg.TicketCount = n
	}

	if err := g.runner.Start(context.Background()); err != nil {
		g.setNotice(err.Error())
		return
	}
	g.setNotice("")

	done := g.runner.Done()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				g.w.Invalidate()
				return
			case <-ticker.C:
				g.w.Invalidate()
			}
		}
	}()
}

func (g *GUI) setNotice(msg string) {
	g.mu.Lock()
	g.notice = msg
	g.mu.Unlock()
}

func (g *GUI) layoutMain(gtx C) D {
	return layout.UniformInset(unit.Dp(20)).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D { return g.layoutStatusCard(gtx) }),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Flexed(1, func(gtx C) D { return g.layoutResults(gtx) }),
		)
	})
}

func (g *GUI) layoutStatusCard(gtx C) D {
	st := g.runner.Status()

	stateText := "Idle"
	stateColor := disabledColor
	if st.IsRunning {
		stateText = "Running"
		stateColor = runningColor
	} else if st.TotalTicketsBooked > 0 {
		stateText = "Done"
		stateColor = successColor
	}

	return g.card(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				label := material.H6(g.th, "Session Status: "+stateText)
				label.Color = stateColor
				return layout.Inset{Bottom: unit.Dp(8)}.Layout(gtx, label.Layout)
			}),
			layout.Rigid(g.statusLine(fmt.Sprintf("Attempts: %d", st.TotalAttempts))),
			layout.Rigid(g.statusLine(fmt.Sprintf("Tickets booked: %d / %d",
				st.TotalTicketsBooked, st.TargetTicketCount))),
			layout.Rigid(g.statusLine(fmt.Sprintf("Progress: %.1f%%", st.ProgressPercent))),
			layout.Rigid(g.statusLine(fmt.Sprintf("Runtime: %.0fs", st.RuntimeSeconds))),
		)
	})
}

func (g *GUI) statusLine(text string) layout.Widget {
	return func(gtx C) D {
		label := material.Body1(g.th, text)
		label.Color = textColor
		return layout.Inset{Bottom: unit.Dp(2)}.Layout(gtx, label.Layout)
	}
}

func (g *GUI) layoutResults(gtx C) D {
	results := g.runner.Results()

	return g.card(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				label := material.H6(g.th, fmt.Sprintf("Attempts (%d)", len(results)))
				label.Color = accentColor
				return layout.Inset{Bottom: unit.Dp(8)}.Layout(gtx, label.Layout)
			}),
			layout.Flexed(1, func(gtx C) D {
				return material.List(g.th, &g.resultList).Layout(gtx, len(results),
					func(gtx C, i int) D {
						return g.layoutResultRow(gtx, i, results[i])
					})
			}),
		)
	})
}

func (g *GUI) layoutResultRow(gtx C, i int, res scraper.BookingResult) D {
	text := fmt.Sprintf("#%d  failed: %s", i+1, res.ErrorMessage)
	col := dangerColor
	if res.Success {
		text = fmt.Sprintf("#%d  booked %d ticket(s)", i+1, res.TicketsBooked)
		if res.ConfirmationNumber != "" {
			text += "  · " + res.ConfirmationNumber
		}
		if res.TotalCost > 0 {
			text += fmt.Sprintf("  · $%.2f", res.TotalCost)
		}
		col = successColor
	}

	label := material.Body1(g.th, text)
	label.Color = col
	return layout.Inset{Bottom: unit.Dp(6)}.Layout(gtx, label.Layout)
}

func (g *GUI) card(gtx C, content layout.Widget) D {
	rect := image.Rectangle{Max: gtx.Constraints.Max}
	defer clip.UniformRRect(rect, gtx.Dp(10)).Push(gtx.Ops).Pop()
	paint.Fill(gtx.Ops, cardBg)
	return layout.UniformInset(unit.Dp(16)).Layout(gtx, content)
}
