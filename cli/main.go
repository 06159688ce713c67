package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kardianos/service"

	"github.com/fhelabs/fhegas/cli/internal/config"
	"github.com/fhelabs/fhegas/cli/internal/output"
	"github.com/fhelabs/fhegas/cli/internal/submit"
	"github.com/fhelabs/fhegas/internal/costs"
	"github.com/fhelabs/fhegas/internal/engine"
	"github.com/fhelabs/fhegas/internal/parser"
)

const version = "0.1.0"

func main() {
	command, args := splitCommand(os.Args[1:])

	switch command {
	case "analyze":
		runAnalyze(args)
	case "estimate":
		runEstimate(args)
	case "costs":
		runCosts(args)
	case "config":
		runConfig(args)
	case "sync":
		runSync(args)
	}
}

// splitCommand peels the subcommand off the front of the argument list.
// Only the first argument is considered, so a flag value that happens to
// match a command name is left alone.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 {
		switch args[0] {
		case "analyze", "estimate", "costs", "sync", "config":
			return args[0], args[1:]
		}
	}
	return "analyze", args
}

// newEngine builds a local engine, layering any cost-table overrides from
// the config file, an explicit --costs file and the remote table on top of
// the embedded defaults.
func newEngine(tablePath string, refresh bool) (*engine.Engine, error) {
	registry := costs.NewRegistry(nil)

	if refresh {
		if err := registry.Apply(costs.FetchTable("")); err != nil {
			return nil, err
		}
	}

	if tablePath == "" {
		if cfg, err := config.Load(); err == nil {
			tablePath = cfg.CostTable
		}
	}
	if tablePath != "" {
		table, err := costs.LoadTable(tablePath)
		if err != nil {
			return nil, err
		}
		if err := registry.Apply(table.Operations); err != nil {
			return nil, err
		}
	}

	return engine.New(registry, nil), nil
}

func reportsDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg, err := config.Load(); err == nil && cfg.ReportsDir != "" {
		return cfg.ReportsDir
	}
	dir, err := parser.DefaultReportsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot locate reports directory: %v\n", err)
		os.Exit(1)
	}
	return dir
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("fhegas", flag.ExitOnError)

	var (
		reports   string
		tablePath string
		jsonOut   bool
		compact   bool
		refresh   bool
		showHelp  bool
		showVer   bool
	)

	fs.StringVar(&reports, "reports", "", "Directory of analyzer report files (default ~/.fhegas/reports)")
	fs.StringVar(&tablePath, "costs", "", "YAML cost table overriding the embedded defaults")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.BoolVar(&compact, "compact", false, "Force compact table output")
	fs.BoolVar(&compact, "c", false, "Force compact table output")
	fs.BoolVar(&refresh, "refresh", false, "Refresh the cost table from the published endpoint")
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help")
	fs.BoolVar(&showVer, "version", false, "Show version")
	fs.BoolVar(&showVer, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `fhegas - FHE gas cost estimator for encrypted smart contracts

Usage: fhegas [command] [options]

Commands:
  analyze   Estimate gas for analyzer usage reports (default)
  estimate  Estimate gas for a single operation
  costs     Show or override the operation cost table
  sync      Submit reports to a fhegas server
  config    Configure server settings

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  fhegas                               Analyze ~/.fhegas/reports
  fhegas analyze --reports ./out --json
  fhegas estimate --op mul --size 32
  fhegas costs --set bootstrap=50000,100
  fhegas config --server https://example.com --api-key <key>
  fhegas sync
`)
	}

	fs.Parse(args)

	if showVer {
		fmt.Printf("fhegas version %s\n", version)
		return
	}
	if showHelp {
		fs.Usage()
		return
	}

	eng, err := newEngine(tablePath, refresh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading cost table: %v\n", err)
		os.Exit(1)
	}

	dir := reportsDir(reports)
	batch, err := parser.ParseDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage reports: %v\n", err)
		os.Exit(1)
	}

	if len(batch) == 0 {
		fmt.Printf("No usage reports found in %s\n", dir)
		return
	}

	var results []output.SubjectAnalysis
	for _, report := range batch {
		analysis, err := eng.AnalyzeAndRecord(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error analyzing %s: %v\n", report.SubjectID, err)
			os.Exit(1)
		}
		results = append(results, output.SubjectAnalysis{
			SubjectID:        report.SubjectID,
			ContractAnalysis: analysis,
		})
	}

	if jsonOut {
		output.PrintJSON(results)
	} else {
		output.PrintTable(results, output.TableOptions{ForceCompact: compact})
	}
}

func runEstimate(args []string) {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	var (
		op        string
		size      int64
		tablePath string
	)
	fs.StringVar(&op, "op", "", "Operation name (e.g. add, mul, bootstrap)")
	fs.Int64Var(&size, "size", 0, "Operand data size in bytes")
	fs.StringVar(&tablePath, "costs", "", "YAML cost table overriding the embedded defaults")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fhegas estimate --op NAME [--size N]

Options:
`)
		fs.PrintDefaults()
	}

	fs.Parse(args)

	if op == "" {
		fs.Usage()
		os.Exit(1)
	}

	eng, err := newEngine(tablePath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading cost table: %v\n", err)
		os.Exit(1)
	}

	gas, err := eng.EstimateOperation(op, size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s gas\n", output.FormatGas(gas))
}

func runCosts(args []string) {
	fs := flag.NewFlagSet("costs", flag.ExitOnError)
	var (
		tablePath string
		setSpec   string
		refresh   bool
		push      bool
	)
	fs.StringVar(&tablePath, "load", "", "YAML cost table to apply before printing")
	fs.StringVar(&setSpec, "set", "", "Override one entry: name=base,perByte")
	fs.BoolVar(&refresh, "refresh", false, "Refresh the cost table from the published endpoint")
	fs.BoolVar(&push, "push", false, "Also push the --set override to the configured server")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fhegas costs [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  fhegas costs
  fhegas costs --load table.yaml
  fhegas costs --set bootstrap=50000,100
  fhegas costs --set bootstrap=50000,100 --push
`)
	}

	fs.Parse(args)

	eng, err := newEngine(tablePath, refresh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading cost table: %v\n", err)
		os.Exit(1)
	}

	if setSpec != "" {
		name, values, found := strings.Cut(setSpec, "=")
		var base, perByte int64
		if found {
			_, err = fmt.Sscanf(values, "%d,%d", &base, &perByte)
		}
		if !found || err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --set value %q (want name=base,perByte)\n", setSpec)
			os.Exit(1)
		}
		if err := eng.Registry().SetCost(name, base, perByte); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if push {
			cfg, err := config.Load()
			if err != nil || cfg.Server == "" || cfg.APIKey == "" {
				fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'fhegas config --server <url> --api-key <key>' first.\n")
				os.Exit(1)
			}
			if err := submit.NewClient(cfg).SetCost(name, base, perByte); err != nil {
				fmt.Fprintf(os.Stderr, "Error pushing override: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Pushed %s to %s\n", name, cfg.Server)
		}
	}

	output.PrintCostTable(eng.Registry().Snapshot())
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var (
		server    string
		apiKey    string
		reports   string
		tablePath string
		show      bool
	)
	fs.StringVar(&server, "server", "", "Server URL")
	fs.StringVar(&apiKey, "api-key", "", "API key for authentication")
	fs.StringVar(&reports, "reports", "", "Default analyzer reports directory")
	fs.StringVar(&tablePath, "costs", "", "Default YAML cost table path")
	fs.BoolVar(&show, "show", false, "Show current configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fhegas config [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  fhegas config --server https://example.com --api-key fhegas_xxx
  fhegas config --show
`)
	}

	fs.Parse(args)

	if show {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cfg.Server == "" {
			fmt.Println("No configuration found. Run 'fhegas config --server <url> --api-key <key>' to configure.")
			return
		}
		fmt.Printf("Server: %s\n", cfg.Server)
		if len(cfg.APIKey) > 14 {
			fmt.Printf("API Key: %s...%s\n", cfg.APIKey[:10], cfg.APIKey[len(cfg.APIKey)-4:])
		}
		if cfg.ClientID != "" {
			fmt.Printf("Client ID: %s\n", cfg.ClientID)
		}
		if cfg.ReportsDir != "" {
			fmt.Printf("Reports: %s\n", cfg.ReportsDir)
		}
		if cfg.CostTable != "" {
			fmt.Printf("Cost table: %s\n", cfg.CostTable)
		}
		return
	}

	if server == "" && apiKey == "" && reports == "" && tablePath == "" {
		fs.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	if server != "" {
		cfg.Server = server
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if reports != "" {
		cfg.ReportsDir = reports
	}
	if tablePath != "" {
		cfg.CostTable = tablePath
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration saved.")
}

// submitService implements service.Interface for background submission
type submitService struct {
	interval time.Duration
	stop     chan struct{}
	logger   service.Logger
}

func (s *submitService) Start(svc service.Service) error {
	s.stop = make(chan struct{})
	go s.run()
	return nil
}

func (s *submitService) Stop(svc service.Service) error {
	close(s.stop)
	return nil
}

func (s *submitService) run() {
	cfg, err := config.Load()
	if err != nil || cfg.Server == "" || cfg.APIKey == "" {
		if s.logger != nil {
			s.logger.Error("Not configured. Run 'fhegas config' first.")
		}
		return
	}

	client := submit.NewClient(cfg)

	// Submit immediately on start
	s.doSubmit(client, cfg)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.doSubmit(client, cfg)
		case <-s.stop:
			return
		}
	}
}

func (s *submitService) doSubmit(client *submit.Client, cfg *config.Config) {
	reports, err := parser.ParseDir(reportsDir(cfg.ReportsDir))
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error reading usage reports: %v", err)
		}
		return
	}

	submitted := 0
	for _, report := range reports {
		if _, err := client.SubmitReport(report); err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error submitting %s: %v", report.SubjectID, err)
			}
			continue
		}
		submitted++
	}

	if s.logger != nil && submitted > 0 {
		s.logger.Infof("Submitted %d reports", submitted)
	}
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var (
		dryRun   bool
		interval time.Duration
		subject  string
	)
	fs.BoolVar(&dryRun, "dry-run", false, "Show what would be submitted without sending")
	fs.DurationVar(&interval, "interval", time.Hour, "Submit interval for service mode (e.g., 1h, 30m)")
	fs.StringVar(&subject, "subject", "", "Fetch the server's stored analysis for one subject instead of submitting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fhegas sync [command] [options]

Commands:
  (none)      Submit all reports once
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
	}

	// Check for service commands before parsing flags
	var svcCommand string
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status", "run":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs.Parse(args)

	svcConfig := &service.Config{
		Name:        "fhegas-sync",
		DisplayName: "fhegas Sync Service",
		Description: "Automatically submits FHE usage reports to a fhegas server",
		Arguments:   []string{"sync", "run", fmt.Sprintf("--interval=%s", interval)},
	}

	svc := &submitService{interval: interval}
	s, err := service.New(svc, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch svcCommand {
	case "install":
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.APIKey == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'fhegas config --server <url> --api-key <key>' first.\n")
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Printf("Service installed and started.\n")
		fmt.Printf("Submit interval: %s\n", interval)
		return

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")
		return

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")
		return

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")
		return

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
		} else {
			switch status {
			case service.StatusRunning:
				fmt.Println("Service status: running")
			case service.StatusStopped:
				fmt.Println("Service status: stopped")
			default:
				fmt.Println("Service status: unknown")
			}
		}
		return

	case "": // No service command - submit once
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.APIKey == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'fhegas config --server <url> --api-key <key>' first.\n")
			os.Exit(1)
		}

		client := submit.NewClient(cfg)
		if subject != "" {
			analysis, err := client.GetAnalysis(subject)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error fetching analysis: %v\n", err)
				os.Exit(1)
			}
			output.PrintJSON([]output.SubjectAnalysis{{
				SubjectID:        subject,
				ContractAnalysis: analysis,
			}})
			return
		}
		doSubmitOnce(client, cfg, dryRun)
		return

	default:
		// Running as service (internal command)
		logger, err := s.Logger(nil)
		if err == nil {
			svc.logger = logger
		}
		if err := s.Run(); err != nil {
			if logger != nil {
				logger.Error(err)
			} else {
				log.Printf("Service error: %v", err)
			}
		}
	}
}

func doSubmitOnce(client *submit.Client, cfg *config.Config, dryRun bool) {
	reports, err := parser.ParseDir(reportsDir(cfg.ReportsDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage reports: %v\n", err)
		os.Exit(1)
	}

	if len(reports) == 0 {
		fmt.Println("No reports to submit.")
		return
	}

	fmt.Printf("Found %d reports to submit.\n", len(reports))

	if dryRun {
		fmt.Println("Dry run - no data sent.")
		return
	}

	var results []output.SubjectAnalysis
	for _, report := range reports {
		analysis, err := client.SubmitReport(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error submitting %s: %v\n", report.SubjectID, err)
			os.Exit(1)
		}
		results = append(results, output.SubjectAnalysis{
			SubjectID:        report.SubjectID,
			ContractAnalysis: analysis,
		})
	}

	fmt.Printf("Submitted %d reports.\n", len(results))
	if subjects, err := client.ListSubjects(); err == nil {
		fmt.Printf("Server has %d recorded analyses.\n", len(subjects))
	}
	output.PrintSuggestions(results)
}
