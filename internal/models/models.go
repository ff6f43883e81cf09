package models

// AlignmentRecord represents the blast_data table: one alignment hit per query sequence
type AlignmentRecord struct {
	QSeqID   string  `gorm:"column:qseqid;primaryKey;size:64" json:"qseqid"`
	QStart   int64   `gorm:"column:qstart;not null" json:"qstart"`
	QEnd     int64   `gorm:"column:qend;not null" json:"qend"`
	Mismatch int64   `gorm:"column:mismatch;not null" json:"mismatch"`
	GapOpen  int64   `gorm:"column:gapopen;not null" json:"gapopen"`
	PIdent   float64 `gorm:"column:pident;not null" json:"pident"` // percent, 0-100
	NIdent   int64   `gorm:"column:nident;not null" json:"nident"`
	Length   int64   `gorm:"column:length;not null" json:"length"`
	QLen     int64   `gorm:"column:qlen;not null" json:"qlen"`
	SeqFile  string  `gorm:"column:seqfile;size:32;not null;index" json:"seqfile"` // batch tag
}

func (AlignmentRecord) TableName() string {
	return "blast_data"
}

// SequenceRecord represents the seq_data table: one query sequence
type SequenceRecord struct {
	ID    string `gorm:"column:gnl_num;primaryKey;size:64" json:"id"`
	Bases string `gorm:"column:dna_seq;type:text;not null" json:"dna_seq"`
}

func (SequenceRecord) TableName() string {
	return "seq_data"
}

// RunDateRecord represents the seq_year table. A nil MinDate/MaxDate is the
// null sentinel for a batch whose metadata carried no run date.
type RunDateRecord struct {
	SeqFileID string  `gorm:"column:seqfile_id;primaryKey;size:32" json:"seqfile_id"`
	MinDate   *string `gorm:"column:min_date;size:4" json:"min_date"`
	MaxDate   *string `gorm:"column:max_date;size:4" json:"max_date"`
}

func (RunDateRecord) TableName() string {
	return "seq_year"
}

// HasDates reports whether the record carries a real year range
func (r RunDateRecord) HasDates() bool {
	return r.MinDate != nil && r.MaxDate != nil
}

// BatchSummary is one row of the summary artifact, produced per batch by the
// identity calculator and never modified afterwards.
type BatchSummary struct {
	BatchID      string  `json:"-" yaml:"-"`
	FileID       string  `json:"file_id" yaml:"file_id"`
	AlnIdent     float64 `json:"aln_ident" yaml:"aln_ident"`
	QSeqIdent    float64 `json:"qseq_ident" yaml:"qseq_ident"`
	AlnLen       float64 `json:"aln_len" yaml:"aln_len"`
	QSeqRet      float64 `json:"qseqret" yaml:"qseqret"`
	QSeqAll      float64 `json:"qseqall" yaml:"qseqall"`
	NumQSeqs     int     `json:"num_qseqs" yaml:"num_qseqs"`
	NumHits      int     `json:"num_hits" yaml:"num_hits"`
	HitFreq      float64 `json:"hitfreq" yaml:"hitfreq"`
	OverallIdent float64 `json:"overall_ident" yaml:"overall_ident"`
}

// TotalBases recovers the total sequence length the row was normalized against
func (s BatchSummary) TotalBases() float64 {
	return s.QSeqAll * float64(s.NumQSeqs)
}
