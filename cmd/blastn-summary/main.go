package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"blastsum/internal/batch"
	"blastsum/internal/cli"
	"blastsum/internal/pipeline"
	"blastsum/internal/report"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to blastsum.yaml (default: ./blastsum.yaml or ./config/blastsum.yaml)")
	inputDir := flag.String("input", "", "Directory holding the alignment and sequence files")
	outputDir := flag.String("output", "", "Directory for the summary artifacts")
	threshold := flag.Float64("threshold", -1, "Overall identity cutoff between high and low (default from config)")
	reduceOnly := flag.String("reduce", "", "Reduce an existing summary artifact instead of summarizing batches")
	reportPath := flag.String("report", "", "Write a YAML report of the run to this path")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Usage = cli.Usage("blastn-summary [-config <file>] [-input <dir>] [-output <dir>] [-reduce <artifact>]", flag.PrintDefaults)
	flag.Parse()

	overrides := map[string]interface{}{}
	if *inputDir != "" {
		overrides["input.dir"] = *inputDir
	}
	if *outputDir != "" {
		overrides["output.dir"] = *outputDir
	}
	if *threshold >= 0 {
		overrides["reduction.high_identity_threshold"] = *threshold
	}
	if *reportPath != "" {
		overrides["output.report_yaml"] = *reportPath
	}

	env, err := cli.Setup("blastn-summary", *configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		env.Verbose()
	}
	ctx, stop := env.Context()
	defer stop()

	p := pipeline.NewPipeline(env.Config, env.Metrics, env.Tracer, env.Module("pipeline"))
	doc := report.Document{Command: "blastn-summary", GeneratedAt: time.Now()}

	var red *pipeline.ReduceResult
	if *reduceOnly != "" {
		red, err = p.ReduceArtifact(ctx, *reduceOnly)
		if err != nil {
			env.Fail("Reduction failed", err)
		}
		doc.Artifact = *reduceOnly
	} else {
		d, err := batch.Discover(env.Config.Input)
		if err != nil {
			env.Fail("Discovery failed", err)
		}
		if len(d.Batches) == 0 {
			fmt.Printf("No batches with %s and %s files found in %s\n",
				env.Config.Input.AlignmentExt, env.Config.Input.SequenceExt, env.Config.Input.Dir)
		}

		res, err := p.Run(ctx, d)
		if err != nil {
			env.Fail("Summary run failed", err)
		}

		fmt.Println("=== Batch Summaries ===")
		for _, row := range res.Summary.Rows {
			report.WriteBatch(os.Stdout, row)
		}
		report.WriteSkips(os.Stdout, res.Summary.Skipped)

		red = res.Reduce
		doc.Artifact = res.Summary.ArtifactPath
		doc.Batches = res.Summary.Rows
		doc.Skipped = append(doc.Skipped, res.Summary.Skipped...)
	}

	fmt.Println("=== Corpus Reduction ===")
	report.WriteReduction(os.Stdout, red.Reduction)
	report.WriteSkips(os.Stdout, red.Skipped)

	fmt.Printf("Summary artifact: %s\n", doc.Artifact)
	fmt.Printf("High identity rows: %s\n", red.HighPath)
	fmt.Printf("Low identity rows: %s\n", red.LowPath)

	doc.Reduction = &red.Reduction
	doc.Residuals = []string{red.HighPath, red.LowPath}
	doc.Skipped = append(doc.Skipped, red.Skipped...)
	if err := report.WriteYAML(env.Config.Output.ReportYAML, doc); err != nil {
		env.Fail("Failed to write report", err)
	}

	env.Close()
}
