// Package logging настраивает структурированный логгер сервиса.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup устанавливает slog по умолчанию.
// В dev-режиме - читаемый текст с debug, иначе JSON с info.
func Setup(devMode bool) {
	slog.SetDefault(New(os.Stdout, devMode))
}

// New создает логгер поверх w с теми же настройками, что и Setup.
func New(w io.Writer, devMode bool) *slog.Logger {
	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return slog.New(handler)
}
