package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"blastsum/internal/assembler"
	"blastsum/internal/batch"
	"blastsum/internal/capacity"
	"blastsum/internal/cli"
	"blastsum/internal/database"
	"blastsum/internal/report"
	"blastsum/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to blastsum.yaml")
	inputDir := flag.String("input", "", "Directory holding the alignment, sequence and run-date files")
	dbPath := flag.String("db", "", "SQLite store path (default from config)")
	workDir := flag.String("work", "", "Directory for intermediate files")
	keep := flag.Bool("keep", false, "Keep intermediate files for inspection")
	reportPath := flag.String("report", "", "Write a YAML report of the run to this path")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Usage = cli.Usage("make-db [-config <file>] [-input <dir>] [-db <sqlite file>] [-work <dir>] [-keep]", flag.PrintDefaults)
	flag.Parse()

	overrides := map[string]interface{}{}
	if *inputDir != "" {
		overrides["input.dir"] = *inputDir
	}
	if *dbPath != "" {
		overrides["store.path"] = *dbPath
	}
	if *workDir != "" {
		overrides["store.work_dir"] = *workDir
	}
	if *keep {
		overrides["store.keep_intermediates"] = true
	}
	if *reportPath != "" {
		overrides["output.report_yaml"] = *reportPath
	}

	env, err := cli.Setup("make-db", *configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		env.Verbose()
	}
	ctx, stop := env.Context()
	defer stop()

	cfg := env.Config
	d, err := batch.Discover(cfg.Input)
	if err != nil {
		env.Fail("Discovery failed", err)
	}

	manager, err := database.NewDatabaseManager(cfg.Store, env.Module("database"))
	if err != nil {
		env.Fail("Failed to open store", err)
	}
	defer manager.Close()

	st := store.NewStore(manager.GetGormDB(), env.Metrics, env.Module("store"))
	guard := capacity.NewGuard(capacity.NewDiskProbe(env.Metrics), cfg.Capacity.MaxUsedPercent)
	asm := assembler.NewAssembler(cfg, st, guard, env.Metrics, env.Tracer, env.Module("assembler"))

	res, err := asm.Assemble(ctx, d)
	if err != nil {
		manager.Close()
		env.Fail("Assembly failed", err)
	}

	report.WriteAssembly(os.Stdout, res)
	report.WriteSkips(os.Stdout, res.Skipped)

	doc := report.Document{Command: "make-db", GeneratedAt: time.Now(), Assembly: res, Skipped: res.Skipped}
	if err := report.WriteYAML(cfg.Output.ReportYAML, doc); err != nil {
		env.Fail("Failed to write report", err)
	}

	env.Close()
}
