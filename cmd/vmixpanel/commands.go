package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/loykin/vmixpanel"
	"github.com/loykin/vmixpanel/internal/config"
	"github.com/loykin/vmixpanel/internal/instance"
	"github.com/loykin/vmixpanel/internal/portprobe"
	"github.com/loykin/vmixpanel/internal/reaper"
	"github.com/loykin/vmixpanel/internal/server"
)

// command carries the console streams so commands can be tested without a terminal.
type command struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newCommand(in io.Reader, out, errOut io.Writer) command {
	return command{in: in, out: out, err: errOut}
}

func loadConfig(path, envFile string) (*vmixpanel.Config, error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := vmixpanel.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// Serve runs the startup sequence and then serves until ctx is done or a
// shutdown is requested over HTTP. A cancelled conflict prompt is not an error.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	cfg, err := loadConfig(f.ConfigPath, f.EnvFile)
	if err != nil {
		return err
	}
	if f.Host != "" {
		cfg.Server.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Server.Port = f.Port
	}
	if f.PublicDir != "" {
		cfg.Server.PublicDir = f.PublicDir
	}
	if f.NonInteractive {
		cfg.Instance.Interactive = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := vmixpanel.NewLogger(cfg, c.err)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if cfg.Metrics.Enabled {
		if err := vmixpanel.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	sink, err := vmixpanel.NewHistorySink(cfg)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	if cl, ok := sink.(io.Closer); ok {
		defer func() { _ = cl.Close() }()
	}

	st, err := vmixpanel.NewStore(cfg, sink, log)
	if err != nil {
		return err
	}
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("initialize data directory: %w", err)
	}

	resolver := vmixpanel.NewResolver(cfg, c.in, c.out, log)
	outcome, err := resolver.EnsureExclusive(ctx, cfg.Server.Port)
	if outcome == vmixpanel.Aborted {
		if errors.Is(err, vmixpanel.ErrCancelled) {
			_, _ = fmt.Fprintln(c.out, "Startup cancelled.")
			return nil
		}
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			log.Info("exiting", "delay", cfg.Server.ShutdownDelay)
			time.AfterFunc(cfg.Server.ShutdownDelay, cancel)
		})
	}
	router, err := vmixpanel.NewRouter(cfg, st, shutdown, log)
	if err != nil {
		_ = ln.Close()
		return err
	}

	port := ln.Addr().(*net.TCPAddr).Port
	_, _ = fmt.Fprintf(c.out, "VMIX Control Panel: http://localhost:%d\n", port)
	log.Info("serving", "addr", ln.Addr().String(), "data_dir", st.Dir(), "public_dir", cfg.Server.PublicDir)
	return server.Serve(ctx, vmixpanel.NewHTTPServer(router.Handler()), ln, log)
}

// Probe prints "free" or "occupied" for the configured or given port.
func (c command) Probe(_ context.Context, f ProbeFlags) error {
	cfg, err := loadConfig(f.ConfigPath, f.EnvFile)
	if err != nil {
		return err
	}
	host, port := cfg.Server.Host, cfg.Server.Port
	if f.Host != "" {
		host = f.Host
	}
	if f.Port != 0 {
		port = f.Port
	}
	st, err := portprobe.Check(host, port)
	if err != nil {
		_, _ = fmt.Fprintf(c.err, "probe: %v\n", err)
	}
	_, _ = fmt.Fprintln(c.out, st)
	return nil
}

// KillPort terminates every listener of the port after confirmation.
func (c command) KillPort(ctx context.Context, f KillPortFlags) error {
	cfg, err := loadConfig(f.ConfigPath, f.EnvFile)
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if f.Port != 0 {
		port = f.Port
	}
	log := slog.New(slog.NewTextHandler(c.err, &slog.HandlerOptions{Level: slog.LevelWarn}))
	rp := reaper.New(nil, log)

	holders, err := rp.Holders(ctx, port)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		_, _ = fmt.Fprintf(c.out, "No process is listening on port %d.\n", port)
		return nil
	}
	if !f.Yes {
		choice, err := instance.NewConsole(c.in, c.out).Confirm(ctx, port, holders)
		if err != nil {
			return err
		}
		if choice == instance.Cancel {
			_, _ = fmt.Fprintln(c.out, "Cancelled.")
			return nil
		}
	}
	res, err := rp.KillListeners(ctx, port)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Terminated %d of %d process(es) on port %d.\n", res.Count, len(holders), port)
	return nil
}
