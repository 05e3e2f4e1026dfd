package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newLogger returns a human-readable console logger when f is a
// terminal and a JSON logger otherwise. The global zerolog logger
// is pointed at the same output.
func newLogger(f *os.File, debug bool) zerolog.Logger {
	var out io.Writer = f
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{
			Out:        colorable.NewColorable(f),
			TimeFormat: time.Kitchen,
		}
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = l
	return l
}
