package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"tankobon/internal/acquire"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// colorState tints a job state for terminals.
func colorState(state string, colorize bool) string {
	if !colorize {
		return state
	}
	color := ""
	switch acquire.State(state) {
	case acquire.StateDone, acquire.StateAlreadyArchived:
		color = ansiGreen
	case acquire.StateFailed:
		color = ansiRed
	case acquire.StateAccepted:
		color = ansiBlue
	default:
		color = ansiYellow
	}
	return color + state + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
