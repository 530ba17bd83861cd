package logging

import (
	"fmt"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"io"
	"os"
)

// Setup configures the standard logrus logger. format is "text", "json" or
// "auto"; auto picks coloured text on a terminal and JSON otherwise.
func Setup(level, format string, out *os.File) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	log.SetOutput(out)
	log.SetFormatter(formatterFor(format, isTerminal(out)))
	return nil
}

func formatterFor(format string, terminal bool) log.Formatter {
	switch format {
	case "json":
		return &log.JSONFormatter{}
	case "text":
		return &log.TextFormatter{FullTimestamp: true, DisableColors: !terminal}
	}
	if terminal {
		return &log.TextFormatter{FullTimestamp: true, ForceColors: true}
	}
	return &log.JSONFormatter{}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
