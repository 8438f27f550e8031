package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-macro-core/internal/api"
	"github.com/nerrad567/gray-macro-core/internal/bridge"
	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-macro-core/internal/macro"
	"github.com/nerrad567/gray-macro-core/internal/variables"
)

// ─── run ────────────────────────────────────────────────────────────────────

func newRunCmd(opts *options) *cobra.Command {
	var (
		vars       map[string]string
		noBridges  bool
		quiet      bool
		allowShell bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a macro document once and report the outcome",
		Long: `Run loads a YAML or JSON macro document, builds its command tree and
executes it. Node events are printed as they happen. Input, image and
capture steps are served by the configured bridges over MQTT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if noBridges {
				cfg.Bridges.Enabled = false
			}
			if allowShell {
				cfg.Engine.AllowCommands = true
			}
			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			return runDocument(cmd.Context(), cfg, args[0], vars, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Seed a variable (name=value); repeatable")
	cmd.Flags().BoolVar(&noBridges, "no-bridges", false, "Run without MQTT bridges; input and image steps fail")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the run summary")
	cmd.Flags().BoolVar(&allowShell, "allow-commands", false, "Enable run_command steps")
	return cmd
}

// runDocument executes the macro in path. Node events go to events, the
// summary and final variables to out.
func runDocument(ctx context.Context, cfg *config.Config, path string, seed map[string]string, events, out io.Writer) error { //nolint:gocognit // optional bridges and seeding
	log := logging.NewWithWriter(os.Stderr, cfg.Logging, version)

	m, err := loadDocument(path)
	if err != nil {
		return err
	}
	if !m.Enabled {
		return fmt.Errorf("%s: %w", path, macro.ErrMacroDisabled)
	}

	store := variables.NewMemoryStore()
	for name, value := range seed {
		if err := store.Set(ctx, name, value); err != nil {
			return fmt.Errorf("seeding variable: %w", err)
		}
	}

	var delegates engine.Delegates
	if cfg.Bridges.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() { _ = mqttClient.Close() }()
		mqttClient.SetLogger(log)

		var stop func()
		delegates, stop, err = startBridges(cfg, mqttClient, log)
		if err != nil {
			return fmt.Errorf("starting bridges: %w", err)
		}
		defer stop()
	}
	delegates.Variables = store
	if cfg.Engine.AllowCommands {
		delegates.Commands = engine.ExecRunner{}
	}

	types := newTypeRegistry(cfg)
	runner := macro.NewRunner(nil, types, nil, delegates, nil, log)
	runner.AddEventSink(consoleSink(events))
	runner.SetMaxRunTime(cfg.Engine.MaxRunTimeDuration())
	runner.SetPollInterval(cfg.Engine.PollIntervalDuration())

	run, runErr := runner.RunMacro(ctx, m, macro.TriggerCLI, path)
	if run != nil {
		printSummary(out, m, run)
	}
	if vars, err := store.List(ctx); err == nil && len(vars) > 0 {
		fmt.Fprintln(out, "variables:")
		for _, v := range vars {
			fmt.Fprintf(out, "  %s = %q\n", v.Name, v.Value)
		}
	}

	if runErr != nil {
		return runErr
	}
	if run != nil && run.Status == macro.RunCancelled {
		return context.Canceled
	}
	return nil
}

// consoleSink prints one line per node event.
func consoleSink(w io.Writer) engine.EventSink {
	return engine.SinkFunc(func(ev engine.Event) {
		if ev.Node.Type == engine.RootType {
			return
		}
		indent := strings.Repeat("  ", ev.Node.Depth)
		label := fmt.Sprintf("%s#%d %s", indent, ev.Node.Position, ev.Node.Type)
		switch ev.Kind {
		case engine.EventStarted:
			fmt.Fprintf(w, "%s ...\n", label)
		case engine.EventProgress:
			fmt.Fprintf(w, "%s iteration %d/%d\n", label, ev.Iteration, ev.Total)
		case engine.EventFinished:
			fmt.Fprintf(w, "%s %s (%dms)\n", label, ev.Outcome, ev.DurationMS)
		case engine.EventError:
			fmt.Fprintf(w, "%s error: %s\n", label, ev.Error)
		}
	})
}

func printSummary(w io.Writer, m *macro.Macro, run *macro.MacroRun) {
	fmt.Fprintf(w, "%s: %s", m.Name, run.Status)
	if run.DurationMS != nil {
		fmt.Fprintf(w, " in %s", time.Duration(*run.DurationMS)*time.Millisecond)
	}
	fmt.Fprintf(w, " (%d nodes, %d failed)\n", run.NodesRun, run.NodesFailed)
	if run.ErrorMessage != nil {
		if run.FailedPosition != nil {
			fmt.Fprintf(w, "  at position %d: %s\n", *run.FailedPosition, *run.ErrorMessage)
		} else {
			fmt.Fprintf(w, "  %s\n", *run.ErrorMessage)
		}
	}
}

// ─── check ──────────────────────────────────────────────────────────────────

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a macro document and print its command tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return checkDocument(cfg, args[0], cmd.OutOrStdout())
		},
	}
}

// checkDocument validates the document in path, builds its tree and
// prints the flat list with depths followed by the tree.
func checkDocument(cfg *config.Config, path string, out io.Writer) error {
	m, err := loadDocument(path)
	if err != nil {
		return err
	}
	types := newTypeRegistry(cfg)
	if err := macro.ValidateMacro(m, types, cfg.Engine.MaxItems); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	list, err := macro.NewListFromItems(types, m.Items)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(out, "%s (%d items)\n", m.Name, list.Len())
	for _, it := range list.Items() {
		pair := ""
		if p, ok := list.PairOf(it.ID); ok {
			pair = fmt.Sprintf(" -> %d", p.Position)
		}
		disabled := ""
		if !it.Enabled {
			disabled = " (disabled)"
		}
		fmt.Fprintf(out, "%4d  %s%s%s%s\n", it.Position, strings.Repeat("  ", it.NestDepth), it.Type, pair, disabled)
	}

	root, err := macro.NewBuilder(types).BuildList(list)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	tree := engine.Describe(root)
	fmt.Fprintf(out, "\ntree (%d nodes):\n", tree.Size())
	printTree(out, tree, 0)
	return nil
}

// printTree writes one line per node, indented by depth in the tree.
func printTree(w io.Writer, n engine.TreeNode, level int) {
	line := strings.Repeat("  ", level) + n.Type
	if n.Position > 0 {
		line += fmt.Sprintf(" #%d", n.Position)
	}
	if n.Count > 0 {
		line += fmt.Sprintf(" x%d", n.Count)
	}
	fmt.Fprintln(w, line)
	for _, c := range n.Children {
		printTree(w, c, level+1)
	}
}

// ─── types ──────────────────────────────────────────────────────────────────

func newTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the step types and their default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return printTypes(cmd.OutOrStdout(), newTypeRegistry(cfg))
		},
	}
}

func printTypes(w io.Writer, types *macro.TypeRegistry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tROLE\tCLOSES WITH\tDEFAULTS")
	for _, d := range types.Types() {
		keys := make([]string, 0, len(d.Defaults))
		for k, v := range d.Defaults {
			keys = append(keys, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(keys)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Tag, d.Role, orDash(d.CloseTag), orDash(strings.Join(keys, " ")))
	}
	return tw.Flush()
}

// ─── token ──────────────────────────────────────────────────────────────────

func newTokenCmd(opts *options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := api.IssueToken(cfg.Security.JWT, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject, recorded as the run trigger source")
	cmd.Flags().DurationVar(&ttl, "ttl", api.DefaultTokenTTL, "Token lifetime")
	return cmd
}

// ─── Shared ─────────────────────────────────────────────────────────────────

// loadConfig reads the config file, falling back to defaults when the
// file does not exist so one-shot commands work without one.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}
	applyFlags(cfg, opts)
	return cfg, nil
}

// applyFlags applies global flag overrides to cfg.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
}

// loadDocument reads a macro document from path, or stdin for "-".
func loadDocument(path string) (*macro.Macro, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := macro.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc.ToMacro(), nil
}

// newTypeRegistry builds the built-in registry with the configured limits.
func newTypeRegistry(cfg *config.Config) *macro.TypeRegistry {
	return macro.NewBuiltinRegistry(macro.Limits{
		MaxLoopCount:     cfg.Engine.MaxLoopCount,
		MaxWait:          cfg.Engine.MaxWaitDuration(),
		MaxCommandTime:   cfg.Engine.MaxCommandDuration(),
		DefaultThreshold: cfg.Engine.DefaultThreshold,
	})
}

// startBridges starts request clients for the input and vision bridges
// and returns delegates backed by them. stop releases both clients.
func startBridges(cfg *config.Config, transport bridge.Transport, log *logging.Logger) (engine.Delegates, func(), error) {
	var delegates engine.Delegates
	if !cfg.Bridges.Enabled {
		log.Info("bridges disabled; input and image steps will fail")
		return delegates, func() {}, nil
	}

	timeout := cfg.Bridges.RequestTimeoutDuration()
	var started []*bridge.Client
	stop := func() {
		for _, c := range started {
			if err := c.Stop(); err != nil {
				log.Warn("error stopping bridge client", "protocol", c.Protocol(), "error", err)
			}
		}
	}

	for _, protocol := range []string{cfg.Bridges.Input, cfg.Bridges.Vision} {
		if protocol == "" {
			continue
		}
		if len(started) == 1 && started[0].Protocol() == protocol {
			// Input and vision served by the same bridge.
			continue
		}
		c := bridge.NewClient(transport, protocol, timeout)
		c.SetLogger(log)
		if err := c.Start(); err != nil {
			stop()
			return delegates, nil, fmt.Errorf("bridge %s: %w", protocol, err)
		}
		started = append(started, c)
		log.Info("bridge client started", "protocol", protocol, "timeout", timeout)
	}

	for _, c := range started {
		if c.Protocol() == cfg.Bridges.Input {
			delegates.Input = bridge.NewInput(c)
		}
		if c.Protocol() == cfg.Bridges.Vision {
			vision := bridge.NewVision(c)
			delegates.Locator = vision
			delegates.Capturer = vision
		}
	}
	return delegates, stop, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
