package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"chart-abtest-service/internal/domain"
)

// RankingLoader reads a spreadsheet export with a header row. The name and
// score columns are picked by header, e.g. "Player" and "Rings".
type RankingLoader struct {
	path        string
	nameColumn  string
	scoreColumn string
}

func NewRankingLoader(path, nameColumn, scoreColumn string) *RankingLoader {
	return &RankingLoader{path: path, nameColumn: nameColumn, scoreColumn: scoreColumn}
}

func (l *RankingLoader) LoadRanking(ctx context.Context) ([]domain.RankedEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ranking csv: %w", err)
	}
	defer f.Close()
	return Parse(f, l.nameColumn, l.scoreColumn)
}

// Parse decodes rows from r. Every row needs a name and a numeric score.
func Parse(r io.Reader, nameColumn, scoreColumn string) ([]domain.RankedEntity, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", domain.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	nameIdx, scoreIdx := -1, -1
	for i, column := range header {
		switch strings.TrimSpace(column) {
		case nameColumn:
			nameIdx = i
		case scoreColumn:
			scoreIdx = i
		}
	}
	if nameIdx < 0 || scoreIdx < 0 {
		return nil, fmt.Errorf("%w: csv needs columns %q and %q", domain.ErrDataUnavailable, nameColumn, scoreColumn)
	}

	var entities []domain.RankedEntity
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		name := strings.TrimSpace(record[nameIdx])
		if name == "" {
			return nil, fmt.Errorf("%w: line %d has no %s", domain.ErrDataUnavailable, line, nameColumn)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(record[scoreIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d %s is not numeric", domain.ErrDataUnavailable, line, scoreColumn)
		}
		entities = append(entities, domain.RankedEntity{Name: name, Score: score})
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", domain.ErrDataUnavailable)
	}
	return entities, nil
}
