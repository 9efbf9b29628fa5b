package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"horde-monitor/internal/metrics"
)

// TimestampLayout renders point times in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Header is the first CSV row.
var Header = []string{"Timestamp", "Kudos", "Kudos Change", "Image Requests", "Text Requests"}

// Table converts points into rows in window order. An absent kudos change is
// written as 0.
func Table(points []metrics.DataPoint) [][]string {
	return lo.Map(points, func(p metrics.DataPoint, _ int) []string {
		change := "0"
		if p.KudosChange.Valid {
			change = p.KudosChange.Decimal.String()
		}
		return []string{
			p.Timestamp.UTC().Format(TimestampLayout),
			p.Kudos.String(),
			change,
			strconv.Itoa(p.ImageRequests),
			strconv.Itoa(p.TextRequests),
		}
	})
}

// WriteCSV writes the header followed by Table(points).
func WriteCSV(w io.Writer, points []metrics.DataPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	if err := writer.WriteAll(Table(points)); err != nil {
		return err
	}
	return writer.Error()
}

// WriteCSVFile creates path (and its directory) and writes points to it.
func WriteCSVFile(path string, points []metrics.DataPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, points); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Filename is the default export name for a snapshot taken at now.
func Filename(now time.Time) string {
	ts := strings.ReplaceAll(now.UTC().Format(TimestampLayout), ":", "-")
	return "horde-monitor-data-" + ts + ".csv"
}

// Downsample picks at most max evenly spaced points, always keeping the first
// and the last.
func Downsample(points []metrics.DataPoint, max int) []metrics.DataPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]metrics.DataPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
