package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/walmartlabs/concord-sub001/internal/agent"
	"github.com/walmartlabs/concord-sub001/internal/api"
	"github.com/walmartlabs/concord-sub001/internal/auth"
	"github.com/walmartlabs/concord-sub001/internal/config"
	"github.com/walmartlabs/concord-sub001/internal/dispatch"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/lifecycle"
	"github.com/walmartlabs/concord-sub001/internal/lock"
	"github.com/walmartlabs/concord-sub001/internal/log"
	"github.com/walmartlabs/concord-sub001/internal/orchestrator"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/storage"
	"github.com/walmartlabs/concord-sub001/internal/sweeper"
	"github.com/walmartlabs/concord-sub001/internal/tui"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "process":
		os.Exit(runProcessNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("orchd version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`orchd - Workflow process orchestrator

Usage:
  orchd <noun> <action> [flags]

Core Resources (Nouns):
  system    Orchestrator lifecycle and health
  config    System configuration and integrity
  process   Workflow process instances

System Commands:
  system start      Start the orchestrator service in foreground
  system status     Show queue depth and instance counts
  system watch      Live terminal monitor (SSE event stream)

Config Commands:
  config lock       Authorize current state (update integrity hashes)
  config check      Validate syntax and integrity

Process Commands:
  process inspect <id>  Show one instance record from the store

General:
  version           Show version information
  help              Show this help message

Use 'orchd <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock", "hash-update":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runProcessNoun(args []string) int {
	if len(args) < 1 {
		printProcessNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printProcessNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			printProcessInspectHelp()
			return 0
		}
		return runProcessInspect(actionArgs)
	case "help":
		printProcessNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown process action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: orchd system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: orchd config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check")
}

func printProcessNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: orchd process <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func printSystemStartHelp() {
	fmt.Println("Usage: orchd system start [--config PATH]")
	fmt.Println("Start the orchestrator service in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: orchd system status [--config PATH] [--json]")
	fmt.Println("Show queue depth and instance counts by status.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: orchd system watch [--api URL] [--key TOKEN]")
	fmt.Println("Live terminal monitor fed by the orchestrator event stream.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: orchd config lock [--config PATH]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: orchd config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax and integrity.")
}

func printProcessInspectHelp() {
	fmt.Println("Usage: orchd process inspect <instance_id> [--config PATH] [--json]")
	fmt.Println("Show one instance record from the store.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("orchd starting", "version", version, "service", cfg.Service.Name)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Store.Path, "error", err)
		return 1
	}
	defer db.Close()
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		logger.Error("failed to bootstrap schema", "error", err)
		return 1
	}
	logger.Info("store opened", "path", cfg.Store.Path)

	st := store.New(db)
	registry := agent.NewRegistry(agent.WithTTL(cfg.Service.AgentTTL))
	hub := events.NewHub(256)
	mgr := lifecycle.New(st, hub, cfg)
	orch := orchestrator.New(st, mgr, hub, cfg)

	disp := dispatch.New(st, registry, hub, dispatch.Config{
		PollInterval:    cfg.Service.DispatchInterval,
		MaxPollInterval: cfg.Service.MaxDispatchInterval,
		ClaimBatch:      cfg.Service.ClaimBatch,
		StaleClaimAfter: cfg.Service.StaleClaimAfter,
	})
	swp := sweeper.New(st, mgr, sweeper.Config{
		Interval:  cfg.Service.SweepInterval,
		ScanBatch: cfg.Service.ClaimBatch,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)

	go func() {
		if err := disp.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	go func() {
		if err := swp.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("sweeper: %w", err)
		}
	}()

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Name:   t.Name,
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}
		apiServer := api.New(apiConfig, orch, mgr, registry, st, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("orchd running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("orchd stopped")
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	st := store.New(db)
	depth, err := st.Depth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute queue depth: %v\n", err)
		return 1
	}
	counts, err := st.CountByStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count instances: %v\n", err)
		return 1
	}

	daemonPID, pidErr := lock.ReadPID(getPIDLockPath(cfg))

	if *jsonOut {
		out := map[string]any{
			"queue_depth": depth,
			"instances":   counts,
		}
		if pidErr == nil {
			out["daemon_pid"] = daemonPID
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if pidErr == nil {
		fmt.Printf("Daemon PID:  %d\n", daemonPID)
	} else {
		fmt.Println("Daemon PID:  not running")
	}
	fmt.Printf("Queue depth: %d\n", depth)
	fmt.Println("Instances:")
	for status, n := range counts {
		fmt.Printf("  %-10s %d\n", status, n)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8484", "Orchestrator API base URL")
	apiKey := fs.String("key", os.Getenv("ORCHD_API_KEY"), "Bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	p := tea.NewProgram(tui.NewMonitor(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor failed: %v\n", err)
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := resolveConfigPath(*configPath)
	if stat, err := os.Stat(target); err == nil && stat.IsDir() {
		target = filepath.Join(target, "config.yaml")
	}

	if err := config.WriteChecksum(target); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Successfully locked configuration: %s\n", target)
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := resolveConfigPath(*configPath)
	cfg, err := config.Load(target)
	if err != nil {
		if *jsonOut {
			data, _ := json.Marshal(map[string]any{"valid": false, "error": err.Error()})
			fmt.Println(string(data))
		} else {
			fmt.Fprintf(os.Stderr, "Config check FAILED: %v\n", err)
		}
		return 1
	}

	if *jsonOut {
		data, _ := json.Marshal(map[string]any{
			"valid":     true,
			"service":   cfg.Service.Name,
			"projects":  len(cfg.Projects),
			"workflows": len(cfg.Workflows),
		})
		fmt.Println(string(data))
	} else {
		fmt.Printf("Config check PASSED: %s (%d projects, %d workflows)\n",
			target, len(cfg.Projects), len(cfg.Workflows))
	}
	return 0
}

func runProcessInspect(args []string) int {
	// Custom flag parsing to support flags after the instance ID, like
	// 'orchd process inspect <id> --json'.
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output record in JSON")

	var instanceID string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && instanceID == "" {
			instanceID = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}

	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if instanceID == "" {
		fmt.Fprintf(os.Stderr, "Usage: orchd process inspect <instance_id> [--config PATH] [--json]\n")
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	inst, err := store.New(db).Get(ctx, instanceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	if jsonOut {
		data, _ := json.MarshalIndent(inst, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Instance:  %s\n", inst.ID)
	fmt.Printf("Workflow:  %s\n", inst.WorkflowRef)
	fmt.Printf("Status:    %s\n", inst.Status)
	if inst.Kind != "" {
		fmt.Printf("Kind:      %s\n", inst.Kind)
	}
	if inst.ParentID != nil {
		fmt.Printf("Parent:    %s\n", *inst.ParentID)
	}
	if inst.ClaimedBy != "" {
		fmt.Printf("Agent:     %s\n", inst.ClaimedBy)
	}
	if inst.Wait != nil {
		fmt.Printf("Waiting:   %s %q\n", inst.Wait.Type, inst.Wait.Key)
	}
	if inst.Deadline != nil {
		fmt.Printf("Deadline:  %s\n", inst.Deadline.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("Created:   %s\n", inst.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if inst.LastError != "" {
		fmt.Printf("Error:     %s\n", inst.LastError)
	}
	return 0
}

// resolveConfigPath falls back to conventional locations when no --config
// flag was given.
func resolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	for _, candidate := range []string{"config.yaml", "config", "/etc/orchd"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}

func getPIDLockPath(cfg *config.Config) string {
	dbPath := cfg.Store.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	nameWithoutExt := dbBase[:len(dbBase)-len(ext)]
	return filepath.Join(dbDir, nameWithoutExt+".pid")
}
