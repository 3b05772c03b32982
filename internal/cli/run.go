package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"toolbox/internal/config"
	"toolbox/internal/console"
	"toolbox/internal/dispatch"
	"toolbox/internal/display"
	"toolbox/internal/logger"
	"toolbox/internal/metrics"
	"toolbox/internal/missions/lines"
	"toolbox/internal/missions/links"
	"toolbox/internal/missions/numbers"
	"toolbox/internal/missions/sleep"
	"toolbox/internal/reporter"
)

var errFailed = errors.New("enterprise recorded exceptions")

const producerGrace = 2 * time.Second

func newRunCmd() *cobra.Command {
	var flags config.Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an enterprise until its missions are exhausted",
		Example: `  dispatch run --workers 8 --count 1000 --delay 5ms
  dispatch run --source lines --task links --file urls.txt --workers 16 --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			overrideFromFlags(cmd, cfg, &flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// After the first signal starts the drain, a second one kills the process.
			context.AfterFunc(ctx, stop)
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.StringVar(&flags.Name, "name", def.Name, "enterprise name used in logs and reports")
	f.IntVarP(&flags.Workers, "workers", "w", def.Workers, "wished worker count")
	f.StringVar(&flags.Source, "source", def.Source, "mission source: numbers or lines")
	f.StringVar(&flags.Task, "task", def.Task, "mission task: sleep, echo or links")
	f.IntVarP(&flags.Count, "count", "n", def.Count, "number of missions for the numbers source")
	f.StringVarP(&flags.File, "file", "f", def.File, "missions file for the lines source (stdin when empty)")
	f.DurationVar(&flags.Delay, "delay", def.Delay, "time spent per mission by the sleep task")
	f.Int64Var(&flags.FailAt, "fail-at", def.FailAt, "make the n-th mission of the sleep task fail (0 disables)")
	f.BoolVar(&flags.StartPostponed, "postponed", def.StartPostponed, "start with new missions postponed")
	f.BoolVarP(&flags.Interactive, "interactive", "i", def.Interactive, "open a control console while running")
	f.DurationVar(&flags.StatusInterval, "status-interval", def.StatusInterval, "print a status line at this interval (0 disables)")
	f.DurationVar(&flags.HTTPTimeout, "http-timeout", def.HTTPTimeout, "request timeout for the links task")
	f.StringVar(&flags.LogFile, "log-file", def.LogFile, "log file (empty logs to stderr)")
	f.StringVar(&flags.LogLevel, "log-level", def.LogLevel, "log level")
	return cmd
}

// overrideFromFlags applies only the flags given on the command line.
func overrideFromFlags(cmd *cobra.Command, cfg, flags *config.Config) {
	set := cmd.Flags().Changed
	if set("name") {
		cfg.Name = flags.Name
	}
	if set("workers") {
		cfg.Workers = flags.Workers
	}
	if set("source") {
		cfg.Source = flags.Source
	}
	if set("task") {
		cfg.Task = flags.Task
	}
	if set("count") {
		cfg.Count = flags.Count
	}
	if set("file") {
		cfg.File = flags.File
	}
	if set("delay") {
		cfg.Delay = flags.Delay
	}
	if set("fail-at") {
		cfg.FailAt = flags.FailAt
	}
	if set("postponed") {
		cfg.StartPostponed = flags.StartPostponed
	}
	if set("interactive") {
		cfg.Interactive = flags.Interactive
	}
	if set("status-interval") {
		cfg.StatusInterval = flags.StatusInterval
	}
	if set("http-timeout") {
		cfg.HTTPTimeout = flags.HTTPTimeout
	}
	if set("log-file") {
		cfg.LogFile = flags.LogFile
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	switch cfg.Source {
	case config.SourceNumbers:
		return execute[int](ctx, cfg, numbers.NewSource(cfg.Count), sleep.New[int](cfg.Delay, cfg.FailAt), out)
	case config.SourceLines:
		src, err := openLines(cfg, in)
		if err != nil {
			return err
		}
		var task dispatch.Task[string]
		switch cfg.Task {
		case config.TaskEcho:
			task = lines.NewEchoTask(out, "")
		case config.TaskLinks:
			task = links.New(cfg.HTTPTimeout)
		default:
			task = sleep.New[string](cfg.Delay, cfg.FailAt)
		}
		return execute[string](ctx, cfg, src, task, out)
	default:
		return fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func openLines(cfg *config.Config, in io.Reader) (*lines.Source, error) {
	if cfg.File == "" {
		return lines.NewSource(in), nil
	}
	return lines.Open(cfg.File)
}

func execute[M any](ctx context.Context, cfg *config.Config, src dispatch.Source[M], task dispatch.Task[M], out io.Writer) error {
	opts := []dispatch.Option{dispatch.WithName(cfg.Name)}
	if cfg.StartPostponed {
		opts = append(opts, dispatch.WithStartPostponed())
	}
	e, err := dispatch.NewEnterprise(cfg.Workers, dispatch.NewMissionner(src), dispatch.NewWorker(task), opts...)
	if err != nil {
		return err
	}

	// The first interrupt drains gracefully instead of failing the run.
	stopOnSignal := context.AfterFunc(ctx, e.ForbidForeverNewMissionsStart)
	defer stopOnSignal()

	emit := func(s string) { fmt.Fprintln(out, s) }

	var con *console.Console
	if cfg.Interactive {
		con, err = console.New()
		if err != nil {
			return fmt.Errorf("could not open console: %w", err)
		}
		defer con.Close()
		emit = con.Println
	}

	if cfg.StatusInterval > 0 {
		rep, err := reporter.New(e, cfg.StatusInterval, emit)
		if err != nil {
			return err
		}
		rep.Start()
		defer rep.Stop()
	}

	consoleCtx, closeConsole := context.WithCancel(context.Background())
	defer closeConsole()

	var g errgroup.Group
	g.Go(func() error {
		defer closeConsole()
		return e.Run(context.WithoutCancel(ctx))
	})
	if con != nil {
		g.Go(func() error { return con.Run(consoleCtx, e) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Give the source a chance to finalize; a source stuck on stdin may never return.
	waitCtx, cancelWait := context.WithTimeout(context.Background(), producerGrace)
	defer cancelWait()
	if err := e.Missionner().Wait(waitCtx); err != nil {
		logger.Log.Warnf("[Enterprise] %s: source still busy after %s, not finalized", cfg.Name, producerGrace)
	}

	return report(e.Snapshot(), e.Exceptions(), out)
}

func report(snap *metrics.EnterpriseMetrics, errs []error, out io.Writer) error {
	fmt.Fprintln(out, display.FormatEnterpriseMetrics(snap))
	if len(errs) == 0 {
		return nil
	}
	fmt.Fprintln(out, display.FormatExceptions(errs, 10))
	logger.Log.Errorf("[Enterprise] %s closed down with %d exception(s)", snap.Name, len(errs))
	return fmt.Errorf("%w: %d", errFailed, len(errs))
}
