package store

// TableSchema is the DDL and expected column set of one store table
type TableSchema struct {
	Name    string
	Columns []string
	Create  string
	Indexes []string
}

// Tables lists the store tables in load order. The DDL sticks to types both
// SQLite and PostgreSQL accept. References between tables are logical:
// non-hitter sequences have no alignment row, so they are indexed rather
// than declared as foreign keys.
var Tables = []TableSchema{
	{
		Name: "blast_data",
		Columns: []string{
			"qseqid", "qstart", "qend", "mismatch", "gapopen",
			"pident", "nident", "length", "qlen", "seqfile",
		},
		Create: `
CREATE TABLE blast_data (
    qseqid VARCHAR(64) NOT NULL,
    qstart BIGINT NOT NULL,
    qend BIGINT NOT NULL,
    mismatch BIGINT NOT NULL,
    gapopen BIGINT NOT NULL,
    pident DOUBLE PRECISION NOT NULL,
    nident BIGINT NOT NULL,
    length BIGINT NOT NULL,
    qlen BIGINT NOT NULL,
    seqfile VARCHAR(32) NOT NULL,
    PRIMARY KEY (qseqid)
)`,
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_blast_data_seqfile ON blast_data (seqfile)`,
		},
	},
	{
		Name:    "seq_data",
		Columns: []string{"gnl_num", "dna_seq"},
		Create: `
CREATE TABLE seq_data (
    gnl_num VARCHAR(64) NOT NULL,
    dna_seq TEXT NOT NULL,
    PRIMARY KEY (gnl_num)
)`,
	},
	{
		Name:    "seq_year",
		Columns: []string{"seqfile_id", "min_date", "max_date"},
		Create: `
CREATE TABLE seq_year (
    seqfile_id VARCHAR(32) NOT NULL,
    min_date VARCHAR(4),
    max_date VARCHAR(4),
    PRIMARY KEY (seqfile_id)
)`,
	},
}
