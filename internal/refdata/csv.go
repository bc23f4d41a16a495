package refdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Identity and free-text columns. Everything else in the header is kept
// verbatim as a matchable field.
const (
	columnParasite = "Parasite"
	columnGroup    = "Group"
	columnSubtype  = "Subtype"
	columnKeyTest  = "Key Test"
)

// keyTestAliases are the alternate spellings of the Key Test column seen
// across revisions of the master spreadsheet.
var keyTestAliases = []string{"Key test", "Key Tests", "Key notes", "Key Notes"}

// CSVSource loads the reference table from a CSV export of the master
// spreadsheet.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source backed by the given CSV file.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Fingerprint identifies the current state of the backing file so the
// store can detect staleness without re-parsing.
func (s *CSVSource) Fingerprint(ctx context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to stat reference file %s: %w", s.path, err)
	}
	return fmt.Sprintf("%s:%d:%d", s.path, info.Size(), info.ModTime().UnixNano()), nil
}

// Load parses the full table. Rows missing the Parasite identity are
// skipped with a warning; an unreadable file is an error.
func (s *CSVSource) Load(ctx context.Context) (*Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference file %s: %w", s.path, err)
	}
	defer f.Close()

	fingerprint, err := s.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	records, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reference file %s: %w", s.path, err)
	}

	return &Table{
		Records:     records,
		Fingerprint: fingerprint,
		Source:      s.path,
		LoadedAt:    time.Now().UTC(),
	}, nil
}

func parseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = canonicalColumn(strings.TrimSpace(h))
	}

	var records []Record
	skipped := 0
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One malformed row must not abort the batch.
			log.Warn().Int("line", line).Err(err).Msg("Skipping unreadable reference row")
			skipped++
			continue
		}

		rec := Record{Group: GroupUnassigned, Fields: make(map[string]string)}
		for i, cell := range row {
			if i >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			switch columns[i] {
			case columnParasite:
				rec.Parasite = cell
			case columnGroup:
				if g, err := strconv.Atoi(cell); err == nil {
					rec.Group = g
				}
			case columnSubtype:
				rec.Subtype = cell
			case columnKeyTest:
				rec.KeyTest = cell
			default:
				rec.Fields[columns[i]] = cell
			}
		}

		if rec.Parasite == "" {
			log.Warn().Int("line", line).Msg("Skipping reference row without parasite name")
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("kept", len(records)).Msg("Reference table loaded with skipped rows")
	}

	return records, nil
}

// canonicalColumn folds Key Test alias headers into the canonical name.
func canonicalColumn(name string) string {
	for _, alias := range keyTestAliases {
		if name == alias {
			return columnKeyTest
		}
	}
	return name
}
