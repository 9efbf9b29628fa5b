package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"horde-monitor/internal/metrics"
)

// ErrBadHeader is returned when a file does not start with Header.
var ErrBadHeader = errors.New("csv header does not match the export format")

// ReadCSV parses a file produced by WriteCSV. The first row of an export is
// always the oldest window point, so its change is read back as absent.
func ReadCSV(r io.Reader) ([]metrics.DataPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, ErrBadHeader
	}

	var points []metrics.DataPoint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		point, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(points) == 0 {
			point.KudosChange = decimal.NullDecimal{}
		}
		points = append(points, point)
	}
	return points, nil
}

func parseRow(record []string) (metrics.DataPoint, error) {
	ts, err := time.Parse(TimestampLayout, record[0])
	if err != nil {
		return metrics.DataPoint{}, fmt.Errorf("timestamp: %w", err)
	}
	kudos, err := decimal.NewFromString(record[1])
	if err != nil {
		return metrics.DataPoint{}, fmt.Errorf("kudos: %w", err)
	}
	change, err := decimal.NewFromString(record[2])
	if err != nil {
		return metrics.DataPoint{}, fmt.Errorf("kudos change: %w", err)
	}
	images, err := strconv.Atoi(record[3])
	if err != nil || images < 0 {
		return metrics.DataPoint{}, fmt.Errorf("image requests: invalid value %q", record[3])
	}
	texts, err := strconv.Atoi(record[4])
	if err != nil || texts < 0 {
		return metrics.DataPoint{}, fmt.Errorf("text requests: invalid value %q", record[4])
	}

	return metrics.DataPoint{
		Timestamp:     ts.UTC(),
		Kudos:         kudos,
		KudosChange:   decimal.NewNullDecimal(change),
		ImageRequests: images,
		TextRequests:  texts,
	}, nil
}
