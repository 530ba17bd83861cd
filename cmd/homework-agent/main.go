package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/app"
	"homework-agent/internal/logging"
	"homework-agent/internal/settings"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

type Options struct {
	Service  bool   `long:"service" description:"Run headless, without opening the UI"`
	UI       bool   `long:"ui" description:"Run with the UI (default)"`
	Settings string `short:"s" long:"settings" description:"Path to a TOML settings file"`
	LogLevel string `short:"l" long:"log-level" description:"Log level (debug, info, warn, error)"`
	Port     uint16 `short:"p" long:"port" description:"Control plane port on 127.0.0.1"`
}

func main() {
	opts := Options{}
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		log.Fatal(fmt.Errorf("could not parse command line args: %w", err))
	}
	s, err := settings.Load(opts.Settings)
	if err != nil {
		log.Fatal(fmt.Errorf("could not load settings: %w", err))
	}
	if opts.LogLevel != "" {
		s.LogLevel = opts.LogLevel
	}
	if opts.Port != 0 {
		derivedURL := s.UIURL == "http://"+s.ControlAddr+"/"
		s.ControlAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(int(opts.Port)))
		if derivedURL {
			s.UIURL = "http://" + s.ControlAddr + "/"
		}
	}
	if err := logging.Setup(s.LogLevel, s.LogFormat, os.Stderr); err != nil {
		log.Fatal(err)
	}

	mode := app.ModeUI
	if opts.Service && !opts.UI {
		mode = app.ModeService
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.New(s, app.WithMode(mode)).Run(ctx)
	switch {
	case errors.Is(err, app.ErrAlreadyRunning):
		log.Info("Handed over to the running instance")
	case err != nil:
		log.Error(err)
		os.Exit(1)
	}
}
