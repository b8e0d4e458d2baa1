// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trayui

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries one log record to the status line.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// logRecordFadeMsg clears the status line after logRecordFadeDelay.
type logRecordFadeMsg struct{ generation int }

const logRecordFadeDelay = 5 * time.Second

// TUILogHandler is a slog.Handler that sends records at or above its
// level into a bubbletea program. Records are dropped until
// SetProgram is called. Handlers derived with WithAttrs and WithGroup
// share the program pointer.
type TUILogHandler struct {
	level   slog.Leveler
	program *atomic.Pointer[tea.Program]
	prefix  string
	attrs   []string
}

// NewTUILogHandler returns a handler for records at or above level.
func NewTUILogHandler(level slog.Leveler) *TUILogHandler {
	return &TUILogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram starts delivery. Safe to call from any goroutine.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *TUILogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level.Level()
}

// Handle renders "message (key=value, ...)" and sends it.
func (handler *TUILogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{Summary: handler.summary(record), Level: record.Level})
	return nil
}

func (handler *TUILogHandler) summary(record slog.Record) string {
	parts := append([]string(nil), handler.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, handler.prefix+attr.Key+"="+attr.Value.String())
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = append([]string(nil), handler.attrs...)
	for _, attr := range attrs {
		derived.attrs = append(derived.attrs, handler.prefix+attr.Key+"="+attr.Value.String())
	}
	return &derived
}

func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	derived := *handler
	derived.prefix = handler.prefix + name + "."
	return &derived
}

// FanoutHandler sends each record to every handler that accepts it.
type FanoutHandler []slog.Handler

func (fanout FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range fanout {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (fanout FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, handler := range fanout {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (fanout FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(FanoutHandler, len(fanout))
	for i, handler := range fanout {
		derived[i] = handler.WithAttrs(attrs)
	}
	return derived
}

func (fanout FanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(FanoutHandler, len(fanout))
	for i, handler := range fanout {
		derived[i] = handler.WithGroup(name)
	}
	return derived
}
