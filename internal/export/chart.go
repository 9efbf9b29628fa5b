package export

import (
	"errors"
	"io"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"horde-monitor/internal/metrics"
)

// ErrTooFewPoints is returned when a chart would have nothing to draw.
var ErrTooFewPoints = errors.New("at least two points are required to render a chart")

// RenderPNG draws kudos on the primary axis and in-flight requests on the
// secondary axis.
func RenderPNG(w io.Writer, points []metrics.DataPoint) error {
	if len(points) < 2 {
		return ErrTooFewPoints
	}

	x := make([]time.Time, len(points))
	kudos := make([]float64, len(points))
	images := make([]float64, len(points))
	texts := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp
		kudos[i] = p.Kudos.InexactFloat64()
		images[i] = float64(p.ImageRequests)
		texts[i] = float64(p.TextRequests)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Kudos",
			ValueFormatter: countFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Requests",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Kudos",
				XValues: x,
				YValues: kudos,
			},
			chart.TimeSeries{
				Name:    "Image Requests",
				XValues: x,
				YValues: images,
				YAxis:   chart.YAxisSecondary,
			},
			chart.TimeSeries{
				Name:    "Text Requests",
				XValues: x,
				YValues: texts,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// WritePNGFile renders points to path.
func WritePNGFile(path string, points []metrics.DataPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderPNG(file, points); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
