package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"horde-monitor/internal/metrics"
)

// PointRecord is one archived window point together with the generation ids
// outstanding at sample time.
type PointRecord struct {
	SampledAt     time.Time
	Kudos         decimal.Decimal
	KudosChange   decimal.NullDecimal
	ImageRequests int
	TextRequests  int
	ImageIDs      []string
	TextIDs       []string
	CreatedAt     time.Time
}

// NewPointRecord builds an archive row from an applied point.
func NewPointRecord(p metrics.DataPoint, imageIDs, textIDs []string) PointRecord {
	return PointRecord{
		SampledAt:     p.Timestamp.UTC(),
		Kudos:         p.Kudos,
		KudosChange:   p.KudosChange,
		ImageRequests: p.ImageRequests,
		TextRequests:  p.TextRequests,
		ImageIDs:      nonNil(imageIDs),
		TextIDs:       nonNil(textIDs),
	}
}

// DataPoint converts the record back into the window representation.
func (r PointRecord) DataPoint() metrics.DataPoint {
	return metrics.DataPoint{
		Timestamp:     r.SampledAt,
		Kudos:         r.Kudos,
		KudosChange:   r.KudosChange,
		ImageRequests: r.ImageRequests,
		TextRequests:  r.TextRequests,
	}
}

// HaltRecord captures a fetch failure that stopped monitoring.
type HaltRecord struct {
	ID         int64
	OccurredAt time.Time
	Error      string
	LastKudos  decimal.NullDecimal
	Channels   []string
	CreatedAt  time.Time
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
