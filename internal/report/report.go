// Package report renders pipeline results for people: console text with
// thousands separators and a YAML document for archiving a run.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"blastsum/internal/assembler"
	"blastsum/internal/models"
	"blastsum/internal/reducer"
	"blastsum/internal/seqstats"
	"blastsum/internal/utils"
)

// NotAvailable stands in for the statistics of an empty partition
const NotAvailable = "n/a"

// Comma formats n with a comma between every group of three digits
func Comma(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	s = group(s)
	if neg {
		return "-" + s
	}
	return s
}

// CommaFloat formats v rounded to two decimal places with grouped digits
func CommaFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	s = group(whole) + "." + frac
	if neg {
		return "-" + s
	}
	return s
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func round2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteBatch prints the summary of one batch
func WriteBatch(w io.Writer, s models.BatchSummary) {
	fmt.Fprintf(w, "<%s>\n", s.FileID)
	fmt.Fprintf(w, "Ave aln ident   : %s\n", round2(s.AlnIdent))
	fmt.Fprintf(w, "Ave qseq ident  : %s\n", round2(s.QSeqIdent))
	fmt.Fprintf(w, "Ave aln len     : %s\n", round2(s.AlnLen))
	fmt.Fprintf(w, "Ave qseqret len : %s\n", round2(s.QSeqRet))
	fmt.Fprintf(w, "Ave qseqall len : %s\n", round2(s.QSeqAll))
	fmt.Fprintf(w, "Num queryseqs   : %s\n", Comma(int64(s.NumQSeqs)))
	fmt.Fprintf(w, "Num queryhits   : %s\n", Comma(int64(s.NumHits)))
	fmt.Fprintf(w, "Ave hit freq    : %s\n", round2(s.HitFreq))
	fmt.Fprintf(w, "Overall ident   : %s\n", round2(s.OverallIdent))
	fmt.Fprintln(w)
}

// WriteStats prints one block of corpus statistics under title. An empty
// population prints n/a for every value.
func WriteStats(w io.Writer, title string, s reducer.Stats) {
	fmt.Fprintf(w, "<%s>\n", title)
	if s.Empty() {
		for _, label := range statLabels {
			fmt.Fprintf(w, "%s: %s\n", label, NotAvailable)
		}
		fmt.Fprintln(w)
		return
	}

	values := []string{
		round2(s.AlnIdent),
		round2(s.QSeqIdent),
		round2(s.AlnLen),
		round2(s.QSeqRet),
		round2(s.QSeqAll),
		CommaFloat(s.NumQSeqs),
		CommaFloat(s.NumHits),
		round2(s.HitFreq),
		round2(s.OverallIdent),
	}
	for i, label := range statLabels {
		fmt.Fprintf(w, "%s: %s\n", label, values[i])
	}
	fmt.Fprintln(w)
}

var statLabels = []string{
	"Ave aln ident   ",
	"Ave qseq ident  ",
	"Ave aln len     ",
	"Ave qseqret len ",
	"Ave qseqall len ",
	"Num queryseqs   ",
	"Num queryhits   ",
	"Ave hit freq    ",
	"Overall ident   ",
}

// WriteReduction prints the corpus summary, the partition counts and the
// statistics of either partition
func WriteReduction(w io.Writer, red reducer.Reduction) {
	WriteStats(w, "Summary stats for all datasets", red.All)
	if !red.All.Empty() {
		fmt.Fprintf(w, "Weighted overall ident: %s\n\n", round2(red.WeightedOverallIdent))
	}

	fmt.Fprintln(w, "<Num entries by overall ident>")
	fmt.Fprintf(w, "Above %s%%       : %s\n", round2(red.Threshold), Comma(int64(red.High.Count)))
	fmt.Fprintf(w, "At or below %s%% : %s\n", round2(red.Threshold), Comma(int64(red.Low.Count)))
	fmt.Fprintln(w)

	WriteStats(w, "Summary stats for high identity data", red.High)
	WriteStats(w, "Summary stats for low identity data", red.Low)
}

// WriteSkips lists every skipped unit of work
func WriteSkips(w io.Writer, skips []utils.Skip) {
	if len(skips) == 0 {
		return
	}
	fmt.Fprintf(w, "=== Skipped (%d) ===\n", len(skips))
	for i, s := range skips {
		target := s.Batch
		if target == "" {
			target = s.File
		}
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%d. [%s/%s] %s\n", i+1, s.Stage, s.Kind, target)
		fmt.Fprintf(w, "   %s\n", s.Reason)
	}
	fmt.Fprintln(w)
}

// WriteAssembly prints the outcome of a store assembly
func WriteAssembly(w io.Writer, res *assembler.Result) {
	fmt.Fprintln(w, "=== Store Assembly ===")
	fmt.Fprintf(w, "Run ID: %s\n", res.RunID)
	fmt.Fprintf(w, "Batches: %s\n", Comma(int64(len(res.Batches))))
	if len(res.Schema.Created) > 0 {
		fmt.Fprintf(w, "Tables created: %s\n", strings.Join(res.Schema.Created, ", "))
	}
	if len(res.Schema.Reused) > 0 {
		fmt.Fprintf(w, "Tables reused: %s\n", strings.Join(res.Schema.Reused, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Tables ===")
	for _, t := range res.Tables {
		fmt.Fprintf(w, "%-10s loaded %s, collisions %s, total %s\n",
			t.Table, Comma(int64(t.Loaded)), Comma(int64(len(t.Violations))), Comma(res.Counts[t.Table]))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== References ===")
	fmt.Fprintf(w, "Sequences without a hit: %s\n", Comma(res.Orphans.SequencesWithoutHit))
	fmt.Fprintf(w, "Hits without a sequence: %s\n", Comma(res.Orphans.HitsWithoutSequence))
	fmt.Fprintf(w, "Run dates without a batch: %s\n", Comma(res.Orphans.RunDatesWithoutBatch))
	fmt.Fprintln(w)

	if len(res.Kept) > 0 {
		fmt.Fprintf(w, "Intermediates kept in %s\n\n", res.StagingDir)
	}
}

// WriteSeqStats prints the per-file table and the corpus summary
func WriteSeqStats(w io.Writer, r seqstats.Report) {
	fmt.Fprintln(w, "file_name     num     ave  min  max")
	for _, f := range r.Files {
		fmt.Fprintf(w, "%s   %s  %s  %d  %s\n", f.Name, Comma(int64(f.Count)), Comma(f.Mean), f.Min, Comma(f.Max))
	}

	c := r.Corpus
	fmt.Fprintln(w, "======================================")
	fmt.Fprintln(w, "Summary for all files")
	fmt.Fprintln(w, "======================================")
	if c.Files == 0 {
		fmt.Fprintln(w, "No sequence files counted")
		return
	}
	fmt.Fprintf(w, "Min file size: %s seqs\n", Comma(int64(c.MinFileSize)))
	fmt.Fprintf(w, "Max file size: %s seqs\n", Comma(int64(c.MaxFileSize)))
	fmt.Fprintf(w, "Mean file size: %s seqs\n", Comma(int64(c.MeanFileSize)))
	fmt.Fprintf(w, "Median file size: %s seqs\n", median(c.MedianFileSize))
	fmt.Fprintf(w, "Total seqs: %s\n", Comma(int64(c.TotalSeqs)))
	fmt.Fprintf(w, "Min seqlen: %d\n", c.MinSeqLen)
	fmt.Fprintf(w, "Max seqlen: %s\n", Comma(c.MaxSeqLen))
	fmt.Fprintf(w, "Mean seqlen: %s\n", Comma(c.MeanSeqLen))
	fmt.Fprintf(w, "Genome coverage: %s\n", strconv.FormatFloat(c.GenomeCoverage, 'f', -1, 64))
}

// median prints a whole median as an integer and a half median with decimals
func median(v float64) string {
	if v == float64(int64(v)) {
		return Comma(int64(v))
	}
	return CommaFloat(v)
}
