package reducer

import (
	"sort"

	"blastsum/internal/models"
	"blastsum/internal/summary"
)

// DefaultThreshold is the overall identity cutoff between the partitions
const DefaultThreshold = 90.0

// Stats is the unweighted mean of every summary column over Count batches.
// An empty population has Count 0 and zero means.
type Stats struct {
	Count        int     `json:"count" yaml:"count"`
	AlnIdent     float64 `json:"aln_ident" yaml:"aln_ident"`
	QSeqIdent    float64 `json:"qseq_ident" yaml:"qseq_ident"`
	AlnLen       float64 `json:"aln_len" yaml:"aln_len"`
	QSeqRet      float64 `json:"qseqret" yaml:"qseqret"`
	QSeqAll      float64 `json:"qseqall" yaml:"qseqall"`
	NumQSeqs     float64 `json:"num_qseqs" yaml:"num_qseqs"`
	NumHits      float64 `json:"num_hits" yaml:"num_hits"`
	HitFreq      float64 `json:"hitfreq" yaml:"hitfreq"`
	OverallIdent float64 `json:"overall_ident" yaml:"overall_ident"`
}

// Empty reports whether no batch contributed
func (s Stats) Empty() bool {
	return s.Count == 0
}

// sums accumulates column totals
type sums struct {
	n int

	alnIdent, qseqIdent, alnLen, qseqRet, qseqAll float64

	numQSeqs, numHits, hitFreq, overallIdent float64

	weightedAligned, weightedBases float64
}

func (s sums) add(r models.BatchSummary) sums {
	s.n++
	s.alnIdent += r.AlnIdent
	s.qseqIdent += r.QSeqIdent
	s.alnLen += r.AlnLen
	s.qseqRet += r.QSeqRet
	s.qseqAll += r.QSeqAll
	s.numQSeqs += float64(r.NumQSeqs)
	s.numHits += float64(r.NumHits)
	s.hitFreq += r.HitFreq
	s.overallIdent += r.OverallIdent
	s.weightedAligned += r.OverallIdent * r.TotalBases()
	s.weightedBases += r.TotalBases()
	return s
}

func (s sums) mean() Stats {
	if s.n == 0 {
		return Stats{}
	}
	n := float64(s.n)
	return Stats{
		Count:        s.n,
		AlnIdent:     s.alnIdent / n,
		QSeqIdent:    s.qseqIdent / n,
		AlnLen:       s.alnLen / n,
		QSeqRet:      s.qseqRet / n,
		QSeqAll:      s.qseqAll / n,
		NumQSeqs:     s.numQSeqs / n,
		NumHits:      s.numHits / n,
		HitFreq:      s.hitFreq / n,
		OverallIdent: s.overallIdent / n,
	}
}

func (s sums) weighted() float64 {
	if s.weightedBases == 0 {
		return 0
	}
	return s.weightedAligned / s.weightedBases
}

// Reduction is the corpus-wide result
type Reduction struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	All       Stats   `json:"all" yaml:"all"`
	High      Stats   `json:"high" yaml:"high"`
	Low       Stats   `json:"low" yaml:"low"`

	// WeightedOverallIdent weights each batch's overall identity by its
	// total base count, giving the identity of the corpus as one pool
	WeightedOverallIdent float64 `json:"weighted_overall_ident" yaml:"weighted_overall_ident"`

	HighRows []models.BatchSummary `json:"-" yaml:"-"`
	LowRows  []models.BatchSummary `json:"-" yaml:"-"`
}

// IsHigh is the partition rule: strictly above the threshold is high,
// everything else, ties included, is low
func IsHigh(r models.BatchSummary, threshold float64) bool {
	return r.OverallIdent > threshold
}

// Reduce summarizes rows and partitions them at threshold. Rows are taken in
// batch id order so the result does not depend on input order.
func Reduce(rows []models.BatchSummary, threshold float64) Reduction {
	ordered := make([]models.BatchSummary, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].BatchID < ordered[j].BatchID })

	var all, high, low sums
	red := Reduction{Threshold: threshold}

	for _, r := range ordered {
		all = all.add(r)
		if IsHigh(r, threshold) {
			high = high.add(r)
			red.HighRows = append(red.HighRows, r)
		} else {
			low = low.add(r)
			red.LowRows = append(red.LowRows, r)
		}
	}

	red.All = all.mean()
	red.High = high.mean()
	red.Low = low.mean()
	red.WeightedOverallIdent = all.weighted()
	return red
}

// WriteResiduals writes the high and low rows to their own artifacts
func WriteResiduals(red Reduction, highPath, lowPath string) error {
	if err := summary.WriteFile(highPath, red.HighRows); err != nil {
		return err
	}
	return summary.WriteFile(lowPath, red.LowRows)
}
