package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/browser"
	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/sarchlab/pagesim/tracing"
	"github.com/sarchlab/pagesim/workload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath string
	envFile    string
	record     bool
	monitor    bool
	open       bool
	hold       bool
	stats      bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run a workload script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		return runScript(cmd.Context(), runOpts, args[0], cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "TOML configuration file")
	f.StringVar(&runOpts.envFile, "env", ".env", "file of PAGESIM_* variables")
	f.BoolVar(&runOpts.record, "record", false,
		"record page-table events into an SQLite database")
	f.BoolVar(&runOpts.monitor, "monitor", false, "start the web inspector")
	f.BoolVar(&runOpts.open, "open", false,
		"open the web inspector in a browser (implies --monitor)")
	f.BoolVar(&runOpts.hold, "hold", false,
		"keep the inspector running after the script ends, until interrupted")
	f.BoolVar(&runOpts.stats, "stats", false, "print event counts at the end")

	rootCmd.AddCommand(runCmd)
}

func runScript(
	ctx context.Context,
	opts runOptions,
	scriptPath string,
	out io.Writer,
) error {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	logrus.SetLevel(level)

	cmds, err := parseScript(scriptPath)
	if err != nil {
		return err
	}

	k := kernel.MakeBuilder().WithConfig(cfg).Build()
	runner := workload.NewRunner(k, out)

	if opts.record || cfg.RecordPath != "" {
		recorder := datarecording.New(cfg.RecordPath)
		defer recorder.Close()

		execRecorder := datarecording.NewExecRecorder(recorder)
		execRecorder.Start()
		execRecorder.Note("Script", scriptPath)
		execRecorder.Note("Address Mode", cfg.AddressMode)
		defer execRecorder.End()

		tracer := tracing.NewDBTracer(recorder)
		tracing.CollectTrace(k.MMU(), tracer)
	}

	var counter *tracing.CountTracer
	if opts.stats {
		counter = tracing.NewCountTracer()
		tracing.CollectTrace(k.MMU(), counter)
	}

	if opts.monitor || opts.open {
		progress := workload.NewProgress(filepath.Base(scriptPath), len(cmds))
		if err := startMonitor(k, cfg, opts, progress); err != nil {
			return err
		}

		runner.WithProgress(progress)
	}

	err = runner.Run(ctx, cmds)

	if counter != nil {
		printCounts(out, counter)
	}

	if err == nil && opts.hold && (opts.monitor || opts.open) {
		<-ctx.Done()
	}

	return err
}

func parseScript(path string) ([]workload.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cmds, err := workload.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cmds, nil
}

func startMonitor(
	k *kernel.Kernel,
	cfg config.Config,
	opts runOptions,
	progress *workload.Progress,
) error {
	m := monitoring.NewMonitor().WithPortNumber(cfg.MonitorPort)
	m.RegisterKernel(k)
	m.WatchRun(progress)

	url, err := m.StartServer()
	if err != nil {
		return err
	}

	if opts.open {
		if err := browser.OpenURL(url); err != nil {
			logrus.WithError(err).Warn("cannot open browser")
		}
	}

	return nil
}

func printCounts(w io.Writer, counter *tracing.CountTracer) {
	for _, kind := range counter.GetKinds() {
		fmt.Fprintf(w, "%-16s %d\n", kind, counter.GetCount(kind))
	}
}
