package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blastsum/internal/cli"
	"blastsum/internal/report"
	"blastsum/internal/seqstats"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to blastsum.yaml")
	dir := flag.String("dir", "", "Directory holding the sequence files (default: input.dir)")
	ext := flag.String("ext", "", "Sequence file extension (default: seqstats.ext)")
	genomeSize := flag.Int64("genome-size", 0, "Estimated genome size for coverage (default: seqstats.genome_size)")
	out := flag.String("out", "seq_num_report.txt", "Report file name, written to output.dir")
	reportPath := flag.String("report", "", "Write a YAML report of the run to this path")
	verbose := flag.Bool("v", false, "Log at debug level")
	flag.Usage = cli.Usage("seqfile-stats [-config <file>] [-dir <dir>] [-ext <.seq>] [-genome-size <n>]", flag.PrintDefaults)
	flag.Parse()

	overrides := map[string]interface{}{}
	if *dir != "" {
		overrides["input.dir"] = *dir
	}
	if *ext != "" {
		overrides["seqstats.ext"] = *ext
	}
	if *genomeSize > 0 {
		overrides["seqstats.genome_size"] = *genomeSize
	}
	if *reportPath != "" {
		overrides["output.report_yaml"] = *reportPath
	}

	env, err := cli.Setup("seqfile-stats", *configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		env.Verbose()
	}

	cfg := env.Config
	paths, err := seqstats.ListFiles(cfg.Input.Dir, cfg.SeqStats.Ext)
	if err != nil {
		env.Fail("Failed to list sequence files", err)
	}
	if len(paths) == 0 {
		fmt.Printf("No files with extension %s found!\n", cfg.SeqStats.Ext)
	}

	r := seqstats.Collect(paths, cfg.SeqStats.GenomeSize)
	for _, s := range r.Skipped {
		env.Metrics.BatchSkipped("seqstats", string(s.Kind))
		env.Logger.Warn().Str("file", s.File).Str("kind", string(s.Kind)).Msg(s.Reason)
	}

	var buf bytes.Buffer
	report.WriteSeqStats(&buf, r)
	target := filepath.Join(cfg.Output.Dir, *out)
	if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
		env.Fail("Failed to write report", err)
	}
	os.Stdout.Write(buf.Bytes())
	report.WriteSkips(os.Stdout, r.Skipped)

	doc := report.Document{Command: "seqfile-stats", GeneratedAt: time.Now(), SeqStats: &r, Skipped: r.Skipped}
	if err := report.WriteYAML(cfg.Output.ReportYAML, doc); err != nil {
		env.Fail("Failed to write report", err)
	}

	env.Close()
}
