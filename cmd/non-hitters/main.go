package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"blastsum/internal/batch"
	"blastsum/internal/cli"
	"blastsum/internal/nonhit"
	"blastsum/internal/report"
	"blastsum/internal/utils"
)

const stageNonHit = "nonhit"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to blastsum.yaml")
	inputDir := flag.String("input", "", "Directory holding the alignment and sequence files")
	outputDir := flag.String("output", "", "Directory for the non-hitter sequence files")
	reportPath := flag.String("report", "", "Write a YAML report of the run to this path")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Usage = cli.Usage("non-hitters [-config <file>] [-input <dir>] [-output <dir>]", flag.PrintDefaults)
	flag.Parse()

	overrides := map[string]interface{}{}
	if *inputDir != "" {
		overrides["input.dir"] = *inputDir
	}
	if *outputDir != "" {
		overrides["output.dir"] = *outputDir
	}
	if *reportPath != "" {
		overrides["output.report_yaml"] = *reportPath
	}

	env, err := cli.Setup("non-hitters", *configPath, overrides)
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

	filterer := nonhit.NewFilterer(cfg.Output.Dir, cfg.Input.SequenceExt, cfg.Output.NonHitterSuffix,
		cfg.Input.AlignmentDelimiter, env.Metrics, env.Module("nonhit"))
	doc := report.Document{Command: "non-hitters", GeneratedAt: time.Now()}

	skip := func(batchID string, err error) {
		s := utils.NewSkip(stageNonHit, batchID, err)
		env.Metrics.BatchSkipped(stageNonHit, string(s.Kind))
		env.Logger.Warn().Str("batch", s.Batch).Str("kind", string(s.Kind)).Err(err).Msg("Skipped")
		doc.Skipped = append(doc.Skipped, s)
	}
	for _, problem := range d.Problems {
		skip("", problem)
	}

	fmt.Println("Creating non-hitter sequence files for...")
	for _, b := range d.Batches {
		if ctx.Err() != nil {
			env.Fail("Interrupted", ctx.Err())
		}

		out, stats, err := filterer.FilterBatch(b)
		if err != nil {
			skip(b.ID, err)
			continue
		}
		env.Metrics.BatchProcessed(stageNonHit)
		fmt.Printf("%s and %s -> %s (%s kept, %s dropped)\n", b.AlignmentFile, b.SequenceFile, out,
			report.Comma(int64(stats.Kept)), report.Comma(int64(stats.Dropped)))
		doc.NonHitters = append(doc.NonHitters, report.NonHitterFile{Batch: b.ID, Path: out, Stats: stats})
	}
	fmt.Println()

	report.WriteSkips(os.Stdout, doc.Skipped)
	if err := report.WriteYAML(cfg.Output.ReportYAML, doc); err != nil {
		env.Fail("Failed to write report", err)
	}

	env.Close()
}
