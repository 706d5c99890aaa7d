// espalier-explorer is an interactive TUI for browsing a directory tree
// through an espalier model. The filesystem is the source of truth: a
// watcher invalidates the mirror on changes and the queued-update
// machinery coalesces event bursts into single reconciliation passes.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tamlin/espalier/dirtree"
)

func main() {
	cmd := &cli.Command{
		Name:      "espalier-explorer",
		Usage:     "Interactive directory tree explorer with live filesystem mirroring",
		ArgsUsage: "[directory]",
		Action:    run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("ESPALIER_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "show-hidden",
				Aliases: []string{"a"},
				Usage:   "Show dotfiles",
			},
			&cli.StringFlag{
				Name:    "log",
				Usage:   "Write JSON logs to this file (the terminal belongs to the TUI)",
				Sources: cli.EnvVars("ESPALIER_LOG_FILE"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "espalier-explorer: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := NewDefaultConfig()
	if path := cmd.String("config"); path != "" {
		if err := loadConfig(path, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cmd.Bool("show-hidden") {
		cfg.ShowHidden = true
	}
	if path := cmd.String("log"); path != "" {
		cfg.Log.File = path
	}
	if root := cmd.Args().First(); root != "" {
		cfg.Root = root
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	tree, err := dirtree.New(cfg.Root, dirtree.Options{
		ShowHidden: cfg.ShowHidden,
		Debounce:   cfg.DebounceDuration(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// The program handle breaks the construction cycle: the model's
	// scheduler and the watcher both post messages, but the program
	// wrapping the model does not exist until after both are wired.
	handle := &programHandle{}

	m := newModel(cfg, tree, handle.schedule, logger)
	p := tea.NewProgram(m, tea.WithAltScreen())
	handle.set(p)

	logger.Info("explorer: starting", slog.String("root", tree.Root()))

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)

	g.Go(func() error {
		err := tree.Watch(watchCtx, func() {
			handle.send(fsChangedMsg{})
		})
		if err != nil && watchCtx.Err() == nil {
			// The TUI stays usable without live updates; report and
			// let the manual refresh key carry the session.
			logger.Error("explorer: watcher failed", slog.String("error", err.Error()))
			handle.send(watchLostMsg{err: err})
		}
		return nil
	})

	g.Go(func() error {
		defer stopWatch()
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("explorer: TUI error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("explorer: exited normally")
	return nil
}

// newLogger builds the file-backed JSON logger, or a discarding one when
// no file is configured.
func newLogger(cfg LogConfig) (*slog.Logger, func(), error) {
	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("explorer: open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: cfg.Level}))
	return logger, func() { f.Close() }, nil
}

// programHandle hands the running program to callbacks created before it.
// Messages posted before Run are dropped; the model's initial state is
// built from a completed eager pass, so nothing is lost.
type programHandle struct {
	mu sync.Mutex
	p  *tea.Program
}

func (h *programHandle) set(p *tea.Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = p
}

func (h *programHandle) send(msg tea.Msg) {
	h.mu.Lock()
	p := h.p
	h.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// schedule defers a queued update's completion onto the TUI event loop.
func (h *programHandle) schedule(fn func()) {
	h.send(syncFlushMsg{fn: fn})
}
