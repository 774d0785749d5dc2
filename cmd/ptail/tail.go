package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/render"
	"github.com/modoterra/ptail/pkg/router"
	"github.com/modoterra/ptail/pkg/runner"
	"github.com/modoterra/ptail/pkg/tail"
	tuimodel "github.com/modoterra/ptail/pkg/tui/model"
)

// --- Root: tail ---

func runTail(cmd *cobra.Command, _ []string) error {
	if opts.wait <= 0 || opts.refresh <= 0 || opts.resolve <= 0 {
		return errors.New("intervals must be positive")
	}
	if opts.workers <= 0 {
		return errors.New("--workers must be positive")
	}

	// The viewer owns the terminal, so diagnostics go to a file.
	logOut := cmd.ErrOrStderr()
	if opts.tui {
		f, err := os.OpenFile(filepath.Join(os.TempDir(), "ptail.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger, err := newLogger(logOut)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	ro, err := routerOptions(cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(logger)
	if err != nil {
		return err
	}
	engine := tail.NewEngine(tail.Options{
		ReadLimit: env.ReadLimit,
		MaxLine:   env.MaxLine,
		FromTop:   opts.fromTop,
	}, opts.workers, logger)
	loopOpts := runner.Options{Interval: opts.wait, RefreshInterval: opts.refresh}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if opts.tui {
		return runViewer(ctx, cancel, p, engine, ro, loopOpts, logger)
	}

	rt, err := router.New(outputSink(cmd.OutOrStdout()), ro, logger)
	if err != nil {
		return err
	}
	loop := runner.NewPollLoop(p.resolver, p.discoverer, engine, rt, loopOpts, logger)
	runErr := loop.Run(ctx)
	return errors.Join(runErr, rt.Close())
}

func outputSink(w io.Writer) core.Sink {
	if opts.json {
		return render.NewJSON(w)
	}
	mode := render.ColorMode(opts.color)
	if opts.noColor {
		mode = render.ColorNever
	}
	return render.NewTerminal(w, mode, opts.fullColor)
}

// runViewer runs the poll loop behind the full-screen viewer until the user
// quits or ctx is cancelled.
func runViewer(ctx context.Context, cancel context.CancelFunc, p *pipeline, engine *tail.Engine,
	ro router.Options, loopOpts runner.Options, logger *slog.Logger) error {
	prog := tea.NewProgram(tuimodel.New(env.Scrollback), tea.WithAltScreen(), tea.WithContext(ctx))
	sink := tuimodel.NewSink(prog)
	rt, err := router.New(sink, ro, logger)
	if err != nil {
		return err
	}
	loop := runner.NewPollLoop(p.resolver, p.discoverer, engine, rt, loopOpts, logger)

	done := make(chan error, 1)
	go func() {
		err := errors.Join(loop.Run(ctx), rt.Close())
		if err != nil {
			sink.Finish(err)
		}
		done <- err
	}()

	_, runErr := prog.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}
	cancel()
	return errors.Join(runErr, <-done)
}

// --- Show ---

func runShow(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	p, err := newPipeline(logger)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	procs, err := runner.Show(ctx, p.resolver, p.discoverer, logger)
	if errors.Is(err, core.ErrNoMatchingProcess) {
		logger.Warn("no matching process")
		return nil
	}
	if err != nil {
		return err
	}
	return render.WriteShow(cmd.OutOrStdout(), procs)
}
