package horde

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GenerationType names one of the two job queues tracked per account.
type GenerationType string

const (
	GenerationImage GenerationType = "image"
	GenerationText  GenerationType = "text"
)

// ParseGenerationType accepts "image" or "text", case-insensitively.
func ParseGenerationType(raw string) (GenerationType, error) {
	switch GenerationType(strings.ToLower(strings.TrimSpace(raw))) {
	case GenerationImage:
		return GenerationImage, nil
	case GenerationText:
		return GenerationText, nil
	default:
		return "", fmt.Errorf("unknown generation type %q (want image or text)", raw)
	}
}

// Sample is the normalized result of one account-status fetch.
type Sample struct {
	Timestamp time.Time
	Kudos     decimal.Decimal
	ImageIDs  []string
	TextIDs   []string
	Account   Account
}

// TimestampMs returns the sample time in milliseconds since the epoch.
func (s Sample) TimestampMs() int64 {
	return s.Timestamp.UnixMilli()
}

// Account carries the descriptive fields of find_user. All optional.
type Account struct {
	ID           int64         `json:"id"`
	Username     string        `json:"username"`
	WorkerCount  int           `json:"worker_count"`
	AccountAge   time.Duration `json:"account_age"`
	KudosDetails KudosDetails  `json:"kudos_details"`
}

// MarshalJSON renders AccountAge in whole seconds, as the API reports it.
func (a Account) MarshalJSON() ([]byte, error) {
	type plain Account
	return json.Marshal(struct {
		plain
		AccountAge int64 `json:"account_age"`
	}{plain(a), int64(a.AccountAge / time.Second)})
}

// KudosDetails breaks the balance down by origin.
type KudosDetails struct {
	Accumulated decimal.Decimal `json:"accumulated"`
	Gifted      decimal.Decimal `json:"gifted"`
	Received    decimal.Decimal `json:"received"`
	Recurring   decimal.Decimal `json:"recurring"`
}

// GenerationStatus is the detail view of one queued or finished job.
type GenerationStatus struct {
	Done          bool               `json:"done"`
	Faulted       bool               `json:"faulted"`
	IsPossible    bool               `json:"is_possible"`
	Finished      int                `json:"finished"`
	Processing    int                `json:"processing"`
	Waiting       int                `json:"waiting"`
	QueuePosition int                `json:"queue_position"`
	WaitTime      int                `json:"wait_time"`
	Kudos         float64            `json:"kudos"`
	Generations   []GenerationResult `json:"generations"`
}

// GenerationResult is one produced output. Img holds base64 image data for
// image jobs; Text holds the completion for text jobs.
type GenerationResult struct {
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
	Model      string `json:"model"`
	State      string `json:"state"`
	Img        string `json:"img,omitempty"`
	Text       string `json:"text,omitempty"`
}

// SampleSource performs one account-status fetch.
type SampleSource interface {
	FetchSample(ctx context.Context, credential string) (Sample, error)
}

// GenerationAPI looks up and cancels individual jobs.
type GenerationAPI interface {
	GenerationStatus(ctx context.Context, kind GenerationType, id string) (GenerationStatus, error)
	CancelGeneration(ctx context.Context, credential string, kind GenerationType, id string) error
}
