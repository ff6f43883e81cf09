// Package identity derives per-record identity and the per-batch summary row.
package identity

import (
	"blastsum/internal/models"
	"blastsum/internal/utils"
)

// Record returns the identity of one alignment hit. The identical-base count
// is normalized against the longer of the alignment and the query, so the
// result stays within [0, 1] when local alignment reports a span beyond the
// nominal query length.
func Record(r models.AlignmentRecord) float64 {
	if r.Length > r.QLen {
		return float64(r.NIdent) / float64(r.Length)
	}
	return float64(r.NIdent) / float64(r.QLen)
}

// Calculator builds summary rows. FileIDPrefix is prepended to the batch id
// to form the file_id column.
type Calculator struct {
	FileIDPrefix string
}

// NewCalculator creates a calculator
func NewCalculator(fileIDPrefix string) *Calculator {
	return &Calculator{FileIDPrefix: fileIDPrefix}
}

// Summarize computes the summary row of one batch. A batch with no hits,
// no sequences or no bases cannot be normalized and yields an
// EmptyBatchError.
func (c *Calculator) Summarize(batchID string, alignments []models.AlignmentRecord, sequences []models.SequenceRecord) (models.BatchSummary, error) {
	numHits := len(alignments)
	numQSeqs := len(sequences)

	if numHits == 0 {
		return models.BatchSummary{}, utils.NewEmptyBatchError(batchID, "no alignment hits")
	}
	if numQSeqs == 0 {
		return models.BatchSummary{}, utils.NewEmptyBatchError(batchID, "no query sequences")
	}

	var totalBases int64
	for _, s := range sequences {
		totalBases += int64(len(s.Bases))
	}
	if totalBases == 0 {
		return models.BatchSummary{}, utils.NewEmptyBatchError(batchID, "query sequences have no bases")
	}

	var sumIdent, sumPIdent, sumLength, sumQLen float64
	for _, a := range alignments {
		sumIdent += Record(a)
		sumPIdent += a.PIdent
		sumLength += float64(a.Length)
		sumQLen += float64(a.QLen)
	}

	hits := float64(numHits)
	meanIdent := sumIdent / hits
	meanQLen := sumQLen / hits
	totalAligned := meanIdent * meanQLen * hits

	return models.BatchSummary{
		BatchID:      batchID,
		FileID:       c.FileIDPrefix + batchID,
		AlnIdent:     sumPIdent / hits,
		QSeqIdent:    meanIdent * 100,
		AlnLen:       sumLength / hits,
		QSeqRet:      meanQLen,
		QSeqAll:      float64(totalBases) / float64(numQSeqs),
		NumQSeqs:     numQSeqs,
		NumHits:      numHits,
		HitFreq:      hits / float64(numQSeqs) * 100,
		OverallIdent: totalAligned / float64(totalBases) * 100,
	}, nil
}
