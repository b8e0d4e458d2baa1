// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
)

type viewMsg struct{ view coordinator.View }

type alertMsg struct{ alert coordinator.Alert }

// ShutdownMsg ends the program. Reason, if set, is printed after the
// window closes.
type ShutdownMsg struct{ Reason string }

// Presenter forwards coordinator output into a bubbletea program.
//
// Repaint and ShowError never block. Views are coalesced so the
// program only sees the latest one; alerts are queued in order.
// A forwarding goroutine started by SetProgram does the sending,
// since the program may itself be waiting on the coordinator.
type Presenter struct {
	mu      sync.Mutex
	view    *coordinator.View
	alerts  []coordinator.Alert
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	closing sync.Once
}

// NewPresenter returns a Presenter with no program attached. Output
// before SetProgram is held and delivered once it is attached.
func NewPresenter() *Presenter {
	return &Presenter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// SetProgram attaches the program and starts forwarding. Only the
// first call has any effect.
func (p *Presenter) SetProgram(program *tea.Program) {
	p.once.Do(func() { go p.forward(program) })
}

// Close stops forwarding.
func (p *Presenter) Close() {
	p.closing.Do(func() { close(p.done) })
}

// Repaint replaces the pending view.
func (p *Presenter) Repaint(view coordinator.View) {
	p.mu.Lock()
	p.view = &view
	p.mu.Unlock()
	p.signal()
}

// ShowError queues an alert.
func (p *Presenter) ShowError(alert coordinator.Alert) {
	p.mu.Lock()
	p.alerts = append(p.alerts, alert)
	p.mu.Unlock()
	p.signal()
}

func (p *Presenter) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything pending.
func (p *Presenter) take() (*coordinator.View, []coordinator.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, alerts := p.view, p.alerts
	p.view, p.alerts = nil, nil
	return view, alerts
}

func (p *Presenter) forward(program *tea.Program) {
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}
		view, alerts := p.take()
		for _, alert := range alerts {
			program.Send(alertMsg{alert: alert})
		}
		if view != nil {
			program.Send(viewMsg{view: *view})
		}
	}
}

var _ coordinator.Presenter = (*Presenter)(nil)
