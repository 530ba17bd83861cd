// Package app wires the agent together and owns its lifecycle: instance
// arbitration, the daily scheduler, the control plane server and the UI
// window.
package app

import (
	"context"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/autostart"
	"homework-agent/internal/homework"
	"homework-agent/internal/http"
	"homework-agent/internal/instance"
	"homework-agent/internal/model"
	"homework-agent/internal/notify"
	"homework-agent/internal/scheduler"
	"homework-agent/internal/settings"
	"homework-agent/internal/window"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"sync"
)

// ErrAlreadyRunning is returned by Run when another instance owns the lock.
// The caller exits cleanly.
var ErrAlreadyRunning = errors.New("another instance is already running")

type Mode int

const (
	ModeUI Mode = iota
	ModeService
)

type Application struct {
	settings settings.Settings
	mode     Mode

	native    instance.NativeActivator
	window    model.WindowService
	autostart model.AutostartService
	sender    homework.Sender

	arbiterOpts []instance.ArbiterOption
	arbiter     *instance.Arbiter
	history     model.HistoryStorage
	scheduler   *scheduler.DailyScheduler
	server      *nethttp.Server
	listener    net.Listener

	ready    chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

type Option func(*Application)

func WithMode(mode Mode) Option {
	return func(a *Application) { a.mode = mode }
}

// WithWindow replaces the desktop window controller.
func WithWindow(w model.WindowService) Option {
	return func(a *Application) { a.window = w }
}

func WithNativeActivator(n instance.NativeActivator) Option {
	return func(a *Application) { a.native = n }
}

func WithAutostart(s model.AutostartService) Option {
	return func(a *Application) { a.autostart = s }
}

func WithSender(s homework.Sender) Option {
	return func(a *Application) { a.sender = s }
}

func New(s settings.Settings, opts ...Option) *Application {
	a := &Application{
		settings: s,
		sender:   homework.DryRunSender{},
		ready:    make(chan struct{}),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.native == nil || a.window == nil {
		native := window.NewNative()
		if a.native == nil {
			a.native = native
		}
		if a.window == nil {
			a.window = window.NewController(s.WindowTitle, s.UIURL, native, window.NewLauncher())
		}
	}
	return a
}

// Ready is closed once the control plane is listening.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Addr is the control plane's bound address, valid after Ready.
func (a *Application) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Exit asks Run to shut down and return.
func (a *Application) Exit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

func (a *Application) showWindow() {
	if err := a.window.Show(); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Failed showing window")
	}
}

// Run claims the application identity and serves until ctx is cancelled or
// Exit is called. A redundant launch activates the running instance and
// returns ErrAlreadyRunning.
func (a *Application) Run(ctx context.Context) error {
	opts := append([]instance.ArbiterOption{instance.WithActivationHandler(a.showWindow)}, a.arbiterOpts...)
	a.arbiter = instance.NewArbiter(a.settings.LockPath(), opts...)
	role, record, err := a.arbiter.BecomeServerOrFindExisting()
	if role != instance.RoleServer {
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Could not claim instance lock")
		}
		activator := instance.NewActivator(a.native, a.settings.WindowTitle)
		if !activator.ActivateExisting(record) {
			log.Warn("Could not activate the running instance")
		}
		return ErrAlreadyRunning
	}
	log.WithFields(log.Fields{"pid": record.PID, "port": record.Port}).Info("Running as primary instance")

	if err := a.start(); err != nil {
		a.stop()
		return err
	}
	close(a.ready)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if a.mode == ModeUI {
		a.showWindow()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown requested")
	case <-a.quit:
		log.Info("Exit requested from control plane")
	case err := <-serveErr:
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Control plane stopped")
			runErr = fmt.Errorf("control plane stopped: %w", err)
		}
	}
	a.stop()
	return runErr
}

func (a *Application) start() error {
	config, err := model.NewJSONConfigStore(a.settings.DataDir, legacyConfigDirs()...)
	if err != nil {
		return fmt.Errorf("could not open configuration: %w", err)
	}

	history, err := model.NewSQLHistoryStorage(context.Background(), a.settings.HistoryPath())
	if err != nil {
		log.WithFields(log.Fields{"error": err, "path": a.settings.HistoryPath()}).Warn("Run history unavailable")
	} else {
		a.history = history
	}

	if a.autostart == nil {
		command, err := autostart.UICommand()
		if err != nil {
			return err
		}
		manager, err := autostart.New(autostart.DefaultEntryName, command)
		if err != nil {
			return fmt.Errorf("could not create autostart manager: %w", err)
		}
		a.autostart = manager
	}

	documents := homework.NewService(config, a.sender)
	schedOpts := []scheduler.Option{
		scheduler.WithTickInterval(a.settings.TickInterval()),
		scheduler.WithJoinTimeout(a.settings.JoinTimeout()),
		scheduler.WithNotifier(notify.New(a.settings.AppName, a.settings.Notifications)),
	}
	var historyReader http.HistoryReader
	if a.history != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(a.history))
		historyReader = a.history
	}
	a.scheduler = scheduler.New(documents, schedOpts...)
	if err := a.scheduler.ApplyConfig(config.Get()); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Starting without a daily send")
	}

	server, err := http.NewControlServer(http.Deps{
		Config:    config,
		Scheduler: a.scheduler,
		Documents: documents,
		Autostart: a.autostart,
		Window:    a.window,
		History:   historyReader,
		Exit:      a.Exit,
		UIDir:     uiDir(),
	}, a.settings.ControlAddr)
	if err != nil {
		return fmt.Errorf("could not create control server: %w", err)
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("could not bind control plane on %s: %w", server.Addr, err)
	}
	a.server, a.listener = server, listener
	log.WithField("addr", listener.Addr().String()).Info("Control plane listening")
	return nil
}

// stop shuts down the control plane, then the scheduler, then releases the
// instance lock. Every step is best effort.
func (a *Application) stop() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.settings.ShutdownTimeout())
		if err := a.server.Shutdown(ctx); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Failed to shut down control plane")
		}
		cancel()
	} else if a.listener != nil {
		a.listener.Close()
	}
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("Failed closing run history")
		}
	}
	if err := a.arbiter.Release(); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Failed releasing instance lock")
	}
}

// legacyConfigDirs lists where older builds kept config.json.
func legacyConfigDirs() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

func uiDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "static")
}
