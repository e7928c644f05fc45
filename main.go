package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/gratbox/graph-csv-sync/internal/auth"
	"github.com/gratbox/graph-csv-sync/internal/config"
	"github.com/gratbox/graph-csv-sync/internal/csvio"
	"github.com/gratbox/graph-csv-sync/internal/graph"
	"github.com/gratbox/graph-csv-sync/internal/logger"
	"github.com/gratbox/graph-csv-sync/internal/metrics"
	"github.com/gratbox/graph-csv-sync/internal/provider"
	"github.com/gratbox/graph-csv-sync/internal/provider/autopilot"
	"github.com/gratbox/graph-csv-sync/internal/provider/entra"
	"github.com/gratbox/graph-csv-sync/internal/provider/intune"
	"github.com/gratbox/graph-csv-sync/internal/reconcile"
	"github.com/gratbox/graph-csv-sync/internal/state"
)

const (
	taskInventory    = "inventory"
	taskGroupMembers = "group-members"
	taskGroupTags    = "group-tags"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		task       = flag.String("task", "", "task to run: inventory, group-members, group-tags")
		input      = flag.String("input", "", "path to input CSV (group-members, group-tags)")
		reportPath = flag.String("report", "", "path for the outcome report CSV (default: report dir, timestamped)")
		dryRun     = flag.Bool("dry-run", false, "compute and report operations without applying them")
		serve      = flag.Bool("serve", false, "run the task on an interval with a metrics endpoint")
		keepCache  = flag.Bool("keep-cache", false, "keep the serial lookup cache from the previous run")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Reconcile.DryRun = true
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	if *task == "" {
		slog.Error("No task given, expected one of inventory, group-members, group-tags")
		os.Exit(1)
	}

	m := metrics.New(true)

	store, err := state.New(cfg.CachePath, m)
	if err != nil {
		slog.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if !*keepCache {
		if err := store.ResetCache(); err != nil {
			slog.Error("Failed to reset lookup cache", "error", err)
			os.Exit(1)
		}
	}

	tokens, err := auth.NewTokenSource(cfg.Graph)
	if err != nil {
		slog.Error("Failed to build credential", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := validateToken(ctx, tokens, cfg.Graph); err != nil {
		slog.Error("Token validation failed", "error", err)
		os.Exit(1)
	}

	caller := graph.NewCaller(nil, graph.CallerOpts{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Graph.RatePerSec), 1),
	}, m)
	client := graph.NewClient(caller, tokens)

	runner := &runner{
		cfg:    cfg,
		client: client,
		store:  store,
		m:      m,
		task:   *task,
		input:  *input,
		report: *reportPath,
	}

	if !*serve {
		if err := runner.run(ctx); err != nil {
			slog.Error("Run failed", "task", *task, "error", err)
			os.Exit(1)
		}
		return
	}

	// Serve mode: run the task on an interval and expose metrics.
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: ":9090", Handler: mux}

	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runLoop(ctx, wg, runner, cfg.SyncInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutdown signal received")
	cancel()

	serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServer()
	if err := server.Shutdown(serverShutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	wg.Wait()
	slog.Info("Service shutdown complete")
}

func runLoop(ctx context.Context, wg *sync.WaitGroup, r *runner, interval time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.run(ctx); err != nil {
			slog.Error("Run failed", "task", r.task, "error", err)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			slog.Info("Stopping run loop")
			return
		}
	}
}

type runner struct {
	cfg    *config.Config
	client *graph.Client
	store  state.Store
	m      *metrics.Metrics
	task   string
	input  string
	report string
}

func (r *runner) run(ctx context.Context) error {
	slog.Info("Starting run", "task", r.task, "mode", r.cfg.Reconcile.Mode, "dryRun", r.cfg.Reconcile.DryRun)
	start := time.Now()
	defer func() {
		r.m.SetRunDuration(time.Since(start))
	}()

	var err error
	switch r.task {
	case taskInventory:
		err = r.runInventory(ctx)
	case taskGroupMembers, taskGroupTags:
		err = r.runReconcile(ctx, start)
	default:
		err = fmt.Errorf("unknown task %q", r.task)
	}

	r.m.IncRun(r.task, err == nil)
	return err
}

func (r *runner) runInventory(ctx context.Context) error {
	exporter := intune.NewExporter(r.client, r.m)
	stamp := time.Now().Format("20060102-150405")

	devicesPath := filepath.Join(r.cfg.Report.Dir, fmt.Sprintf("managed-devices-%s.csv", stamp))
	n, err := exporter.ExportManagedDevices(ctx, devicesPath)
	if err != nil {
		return fmt.Errorf("export managed devices: %w", err)
	}
	slog.Info("Exported managed devices", "count", n, "path", devicesPath)

	autopilotPath := filepath.Join(r.cfg.Report.Dir, fmt.Sprintf("autopilot-devices-%s.csv", stamp))
	n, err = exporter.ExportAutopilotIdentities(ctx, autopilotPath)
	if err != nil {
		return fmt.Errorf("export autopilot identities: %w", err)
	}
	slog.Info("Exported autopilot identities", "count", n, "path", autopilotPath)
	return nil
}

func (r *runner) runReconcile(ctx context.Context, start time.Time) error {
	if r.input == "" {
		return fmt.Errorf("task %s requires -input", r.task)
	}

	prov, schema, err := r.binding()
	if err != nil {
		return err
	}

	loader := csvio.NewLoader(rune(r.cfg.CSV.Delimiter[0]))
	desired, err := loader.Load(r.input, schema)
	if err != nil {
		return err
	}
	r.m.IncCSVRows("desired", len(desired))
	slog.Info("Loaded desired records", "task", r.task, "count", len(desired), "path", r.input)

	engine := reconcile.NewEngine(prov, r.task, reconcile.Mode(r.cfg.Reconcile.Mode), r.cfg.Reconcile.DryRun, r.m)
	results, err := engine.Reconcile(ctx, desired)
	if err != nil {
		return err
	}

	reportPath := r.report
	if reportPath == "" {
		reportPath = filepath.Join(r.cfg.Report.Dir, fmt.Sprintf("%s-%s.csv", r.task, start.Format("20060102-150405")))
	}
	if err := csvio.WriteReport(reportPath, results.Rows); err != nil {
		slog.Error("Failed to persist report, results held in memory only", "error", err, "rows", len(results.Rows))
		return err
	}

	slog.Info("Run completed",
		"task", r.task,
		"applied", results.Applied,
		"skipped", results.Skipped,
		"errored", results.Errored,
		"report", reportPath)

	run := state.RunRecord{
		Task:       r.task,
		Mode:       r.cfg.Reconcile.Mode,
		DryRun:     r.cfg.Reconcile.DryRun,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Applied:    results.Applied,
		Skipped:    results.Skipped,
		Errored:    results.Errored,
		ReportPath: reportPath,
	}
	if err := r.store.SaveRun(run); err != nil {
		slog.Warn("fail save run record", "error", err)
	}
	return nil
}

func (r *runner) binding() (provider.Provider, csvio.Schema, error) {
	switch r.task {
	case taskGroupMembers:
		p, err := entra.New(r.client, r.cfg.Graph.GroupID)
		if err != nil {
			return nil, csvio.Schema{}, err
		}
		return p, memberSchema(), nil
	case taskGroupTags:
		return autopilot.New(r.client, r.store), tagSchema(), nil
	}
	return nil, csvio.Schema{}, fmt.Errorf("no reconcile binding for task %q", r.task)
}

func memberSchema() csvio.Schema {
	return csvio.Schema{
		Key: "memberId",
		Fields: []csvio.Field{
			{
				Name:     "memberId",
				Aliases:  []string{"MemberObjectId", "ObjectId", "Id", "Member"},
				Required: true,
				Validate: csvio.ValidateGUID,
			},
		},
	}
}

func tagSchema() csvio.Schema {
	return csvio.Schema{
		Key: "serialNumber",
		Fields: []csvio.Field{
			{
				Name:     "serialNumber",
				Aliases:  []string{"SerialNumber", "Serial", "Device Serial Number"},
				Required: true,
				Validate: csvio.ValidateSerial,
			},
			{
				Name:    autopilot.AttrGroupTag,
				Aliases: []string{"GroupTag", "Tag", "Group Tag"},
			},
		},
	}
}

func validateToken(ctx context.Context, tokens *auth.TokenSource, cfg config.Graph) error {
	token, err := tokens.Token(ctx)
	if err != nil {
		return err
	}
	if cfg.TenantID != "" {
		tid, err := auth.TenantID(token)
		if err != nil {
			return err
		}
		if tid != cfg.TenantID {
			return fmt.Errorf("token issued by tenant %s, expected %s", tid, cfg.TenantID)
		}
	}
	return auth.ValidateScopes(token, requiredScopes(cfg.Scopes))
}

// requiredScopes filters out the .default meta-scope, which never appears as
// a claim on the issued token.
func requiredScopes(scopes []string) []string {
	var out []string
	for _, s := range scopes {
		if s == "https://graph.microsoft.com/.default" || s == ".default" {
			continue
		}
		out = append(out, trimScopePrefix(s))
	}
	return out
}

func trimScopePrefix(s string) string {
	const prefix = "https://graph.microsoft.com/"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
