package fsinstall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// options are the command-line settings shared by every command.
type options struct {
	jobs        int
	with        []string
	without     []string
	reinstall   []string
	keep        []string
	yes         bool
	conf        string
	catalog     string
	depsRoot    string
	keepScratch bool
	scratchSet  bool
	pager       bool
	verbose     bool
}

// streams are the process stdio, replaceable in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// Main is the entry point for cmd/fsinstall.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}); err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// execute runs the command line args. Errors are reported on s.err before
// being returned.
func execute(ctx context.Context, args []string, s streams) error {
	opts := &options{}
	root := newRootCmd(opts, s)
	root.SetArgs(args)
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)

	err := root.ExecuteContext(ctx)
	if err != nil {
		reportError(s.err, err, opts.pager)
	}
	return err
}

func newRootCmd(opts *options, s streams) *cobra.Command {
	root := &cobra.Command{
		Use:   "fsinstall <models>",
		Short: "Install FlexibleSUSY and its dependencies",
		Long: `fsinstall builds the libraries FlexibleSUSY needs (CMake, Eigen, Boost, GSL,
GM2Calc) into a private dependency root, then configures and builds
FlexibleSUSY with the given comma-separated list of models.`,
		Example:       "  fsinstall CMSSM,NMSSM -j 4 --with GM2Calc",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if opts.verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(s.err, level)))
			opts.scratchSet = cmd.Flags().Changed("keep-scratch")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), opts, s, args[0], false)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("fsinstall %s\nbuilt: %s\n", version, buildDate))

	f := root.PersistentFlags()
	f.IntVarP(&opts.jobs, "jobs", "j", 1, "parallel jobs for every build")
	f.StringSliceVar(&opts.with, "with", nil, "build or enable these dependencies without asking")
	f.StringSliceVar(&opts.without, "without", nil, "never build or enable these dependencies")
	f.StringSliceVar(&opts.reinstall, "reinstall", nil, "rebuild these dependencies when already installed")
	f.StringSliceVar(&opts.keep, "keep", nil, "keep these dependencies when already installed")
	f.BoolVarP(&opts.yes, "yes", "y", false, "answer yes to every open question")
	f.StringVar(&opts.conf, "conf", "", "KEY=VALUE settings file (default ./"+defaultConfFile+")")
	f.StringVar(&opts.catalog, "catalog", "", "version catalog, .yml or .toml (default ./"+defaultCatalog+")")
	f.StringVar(&opts.depsRoot, "deps-root", "", "dependency root (default ./"+defaultDepsDir+")")
	f.BoolVar(&opts.keepScratch, "keep-scratch", true, "keep the download and build directory after success")
	f.BoolVar(&opts.pager, "pager", false, "show failed build output in a pager")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newPlanCmd(opts, s))
	return root
}

func newPlanCmd(opts *options, s streams) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <models>",
		Short: "Show decisions, build order and configure flags without building",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), opts, s, args[0], true)
		},
	}
}

func runInstall(ctx context.Context, opts *options, s streams, models string, dryRun bool) error {
	modules := ParseModules(models)
	if len(modules) == 0 {
		return ErrNoModules
	}
	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}
	if settings.Debug && !opts.verbose {
		loggerFromContext(ctx).SetLevel(log.DebugLevel)
	}

	inst := NewInstaller(settings, s.out)
	if !dryRun && opts.verbose {
		inst.Live = s.err
	}
	report, err := inst.Run(ctx, Request{
		Modules: modules,
		Jobs:    opts.jobs,
		Intent:  intentFrom(opts, s),
		DryRun:  dryRun,
	})
	if err != nil {
		return err
	}

	if dryRun {
		printDryRun(s.out, report)
		return nil
	}
	arrowf(s.out, "FlexibleSUSY built with models %s\n", strings.Join(modules, ","))
	if report.Target != nil && report.Target.LogFile != "" {
		cFprintf(s.out, colNote, "build log: %s\n", report.Target.LogFile)
	}
	return nil
}

func resolveSettings(opts *options) (Settings, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Settings{}, err
	}
	confPath := resolvePath(wd, opts.conf, defaultConfFile)
	cfg, err := loadConfig(confPath, wd, opts.conf != "")
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load %s: %w", confPath, err)
	}

	s := newSettings(cfg, wd)
	if opts.catalog != "" {
		s.CatalogPath = resolvePath(wd, opts.catalog, defaultCatalog)
	}
	if opts.depsRoot != "" {
		s.DepsRoot = resolvePath(wd, opts.depsRoot, defaultDepsDir)
	}
	if opts.scratchSet {
		s.KeepScratch = opts.keepScratch
	}
	return s, nil
}

// intentFrom turns the command-line answers into an Intent. Open questions
// are asked on the terminal only when stdin is one and --yes is not set.
func intentFrom(opts *options, s streams) Intent {
	intent := Intent{
		BuildLocal: make(map[string]bool),
		Enable:     make(map[string]bool),
		Reinstall:  make(map[string]bool),
		AssumeYes:  opts.yes,
	}
	for _, n := range opts.with {
		intent.BuildLocal[n] = true
		intent.Enable[n] = true
	}
	for _, n := range opts.without {
		intent.BuildLocal[n] = false
		intent.Enable[n] = false
	}
	for _, n := range opts.reinstall {
		intent.Reinstall[n] = true
	}
	for _, n := range opts.keep {
		intent.Reinstall[n] = false
	}
	if f, ok := s.in.(*os.File); ok && !opts.yes && term.IsTerminal(int(f.Fd())) {
		intent.Prompter = NewTerminalPrompter(s.in, s.out)
	}
	return intent
}

func printDryRun(w io.Writer, r *Report) {
	var order []string
	for _, e := range r.Order {
		order = append(order, e.Name())
	}
	if len(order) == 0 {
		order = []string{"(nothing to build)"}
	}
	arrowf(w, "build order: %s\n", strings.Join(order, " "))
	arrowf(w, "configure flags:\n")
	for _, a := range r.Flags.Args() {
		fmt.Fprintf(w, "   %s\n", a)
	}
	arrowf(w, "target steps:\n")
	for _, st := range r.TargetSteps {
		fmt.Fprintf(w, "   [%s] %s\n", st.Phase, strings.Join(st.Argv, " "))
	}
}

func reportError(w io.Writer, err error, usePager bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) && len(stepErr.Output) > 0 {
		title := fmt.Sprintf("%s %s output", stepErr.Name, stepErr.Phase)
		if perr := showOutput(w, title, stepErr.Output, usePager); perr != nil {
			fmt.Fprintln(w, string(stepErr.Output))
		}
	}
	fmt.Fprint(w, colArrow.Sprint("-> "))
	cFprintf(w, colError, "Error: %v\n", err)
}
