// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/bureau-foundation/edge-desktop/lib/coordinator"
)

// logPresenter is the headless presenter. It logs a line when the
// service state, the tunnel, the identity count or the notice change,
// and every alert at Error.
type logPresenter struct {
	logger *slog.Logger

	shown      bool
	state      coordinator.ServiceState
	active     bool
	identities int
	notice     string
	latest     string
}

func newLogPresenter(logger *slog.Logger) *logPresenter {
	return &logPresenter{logger: logger}
}

func (p *logPresenter) Repaint(view coordinator.View) {
	if !p.shown || view.State != p.state || view.Tunnel.Active != p.active || len(view.Identities) != p.identities {
		enabled := 0
		for _, identity := range view.Identities {
			if identity.Enabled {
				enabled++
			}
		}
		p.logger.Info("state",
			"service", view.State.String(),
			"status", view.StatusText,
			"tunnel_active", view.Tunnel.Active,
			"identities", len(view.Identities),
			"enabled", enabled,
		)
	}
	if view.Notice != "" && view.Notice != p.notice {
		p.logger.Info(view.Notice)
	}
	if view.LatestVersion != "" && view.LatestVersion != p.latest {
		p.logger.Info("update available", "version", view.LatestVersion)
	}

	p.shown = true
	p.state = view.State
	p.active = view.Tunnel.Active
	p.identities = len(view.Identities)
	p.notice = view.Notice
	p.latest = view.LatestVersion
}

func (p *logPresenter) ShowError(alert coordinator.Alert) {
	p.logger.Error(alert.Title, "message", alert.Message, "detail", alert.Detail)
}
