package loader

import (
	"bytes"
	"io"
	"strings"

	"blastsum/internal/models"
	"blastsum/internal/utils"
)

// BlockDelimiter opens every sequence block
const BlockDelimiter = '>'

// LoadSequences parses a multi-record sequence file
func LoadSequences(path string) ([]models.SequenceRecord, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, utils.NewIOError(path, err)
	}
	return ParseSequences(data, path)
}

// ParseSequences splits data on the block delimiter. The header of a block
// runs to its first newline and the id is the header's first whitespace
// token; the rest of the block, newlines removed, is the base string.
func ParseSequences(data []byte, name string) ([]models.SequenceRecord, error) {
	blocks := bytes.Split(data, []byte{BlockDelimiter})
	if len(bytes.TrimSpace(blocks[0])) != 0 {
		return nil, utils.NewParseError(name, 1, "content before the first %q", BlockDelimiter)
	}

	records := make([]models.SequenceRecord, 0, len(blocks)-1)
	line := 1 + bytes.Count(blocks[0], []byte{'\n'})

	for _, block := range blocks[1:] {
		header, body, _ := bytes.Cut(block, []byte{'\n'})

		fields := strings.Fields(string(header))
		if len(fields) == 0 {
			return nil, utils.NewParseError(name, line, "sequence block without an id")
		}

		records = append(records, models.SequenceRecord{
			ID:    fields[0],
			Bases: stripLineBreaks(body),
		})
		line += bytes.Count(block, []byte{'\n'})
	}

	return records, nil
}

func stripLineBreaks(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c != '\n' && c != '\r' {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
