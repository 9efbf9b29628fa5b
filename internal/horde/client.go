package horde

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"horde-monitor/internal/version"
)

const (
	// DefaultBaseURL is the public AI Horde v2 API.
	DefaultBaseURL = "https://aihorde.net/api/v2"

	findUserPath         = "/find_user"
	imageStatusPath      = "/generate/status/"
	textStatusPath       = "/generate/text/status/"
	credentialHeader     = "apikey"
	clientAgentHeader    = "Client-Agent"
	maxResponseBodyBytes = 8 << 20
)

// Options parameterise the Horde API client.
type Options struct {
	BaseURL     string
	ClientAgent string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
}

// Client talks to the AI Horde REST API.
type Client struct {
	baseURL     string
	clientAgent string
	maxBody     int64
	client      *http.Client
	now         func() time.Time
	logger      zerolog.Logger
}

// NewClient constructs a Horde API client. A zero Timeout leaves the HTTP
// client without a deadline; the caller's context then governs.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	agent := strings.TrimSpace(opts.ClientAgent)
	if agent == "" {
		agent = version.ClientAgent()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:     baseURL,
		clientAgent: agent,
		maxBody:     maxResponseBodyBytes,
		client:      httpClient,
		now:         now,
		logger:      logger.With().Str("component", "horde_client").Logger(),
	}
}

// FetchSample calls find_user and normalizes the account status. The sample is
// stamped when the response arrives, so samples applied in arrival order are
// also ordered by timestamp.
func (c *Client) FetchSample(ctx context.Context, credential string) (Sample, error) {
	payload, err := c.do(ctx, http.MethodGet, findUserPath, credential)
	if err != nil {
		return Sample{}, err
	}

	sample, err := normalizeFindUser(payload)
	if err != nil {
		return Sample{}, err
	}
	sample.Timestamp = c.now().UTC()

	c.logger.Debug().
		Str("kudos", sample.Kudos.String()).
		Int("image_ids", len(sample.ImageIDs)).
		Int("text_ids", len(sample.TextIDs)).
		Msg("account status fetched")
	return sample, nil
}

// GenerationStatus fetches the detail view for one job.
func (c *Client) GenerationStatus(ctx context.Context, kind GenerationType, id string) (GenerationStatus, error) {
	path, err := statusPath(kind, id)
	if err != nil {
		return GenerationStatus{}, err
	}

	payload, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return GenerationStatus{}, err
	}

	var status GenerationStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return GenerationStatus{}, protocolError("decode generation status", err)
	}
	return status, nil
}

// CancelGeneration asks the Horde to drop a queued job. All failures wrap ErrCancel.
func (c *Client) CancelGeneration(ctx context.Context, credential string, kind GenerationType, id string) error {
	path, err := statusPath(kind, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCancel, err)
	}

	if _, err := c.do(ctx, http.MethodDelete, path, credential); err != nil {
		return fmt.Errorf("%w: %w", ErrCancel, err)
	}

	c.logger.Info().Str("type", string(kind)).Str("id", id).Msg("generation cancelled")
	return nil
}

func (c *Client) do(ctx context.Context, method, path, credential string) ([]byte, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(clientAgentHeader, c.clientAgent)
	if credential != "" {
		req.Header.Set(credentialHeader, credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, transportError("read "+path, err)
	}
	oversized := int64(len(payload)) > c.maxBody
	if oversized {
		payload = payload[:c.maxBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	if oversized {
		return nil, protocolError(method+" "+path, fmt.Errorf("response exceeds %d bytes", c.maxBody))
	}
	return payload, nil
}

func statusPath(kind GenerationType, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("generation id is empty")
	}
	switch kind {
	case GenerationImage:
		return imageStatusPath + url.PathEscape(id), nil
	case GenerationText:
		return textStatusPath + url.PathEscape(id), nil
	default:
		return "", fmt.Errorf("unknown generation type %q", kind)
	}
}

type findUserResponse struct {
	ID                int64            `json:"id"`
	Username          string           `json:"username"`
	Kudos             *decimal.Decimal `json:"kudos"`
	WorkerCount       int              `json:"worker_count"`
	AccountAge        int64            `json:"account_age"`
	KudosDetails      *kudosDetails    `json:"kudos_details"`
	ActiveGenerations *struct {
		Image []string `json:"image"`
		Text  []string `json:"text"`
	} `json:"active_generations"`
}

type kudosDetails struct {
	Accumulated decimal.NullDecimal `json:"accumulated"`
	Gifted      decimal.NullDecimal `json:"gifted"`
	Received    decimal.NullDecimal `json:"received"`
	Recurring   decimal.NullDecimal `json:"recurring"`
}

// normalizeFindUser maps the raw body into a Sample. kudos is required;
// a missing active_generations block means no jobs are queued.
func normalizeFindUser(payload []byte) (Sample, error) {
	var raw findUserResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Sample{}, protocolError("decode find_user", err)
	}
	if raw.Kudos == nil {
		return Sample{}, protocolError("decode find_user", errors.New("kudos field missing"))
	}

	sample := Sample{
		Kudos:    *raw.Kudos,
		ImageIDs: []string{},
		TextIDs:  []string{},
		Account: Account{
			ID:          raw.ID,
			Username:    raw.Username,
			WorkerCount: raw.WorkerCount,
			AccountAge:  time.Duration(raw.AccountAge) * time.Second,
		},
	}
	if raw.ActiveGenerations != nil {
		sample.ImageIDs = normalizeIDs(raw.ActiveGenerations.Image)
		sample.TextIDs = normalizeIDs(raw.ActiveGenerations.Text)
	}
	if d := raw.KudosDetails; d != nil {
		sample.Account.KudosDetails = KudosDetails{
			Accumulated: d.Accumulated.Decimal,
			Gifted:      d.Gifted.Decimal,
			Received:    d.Received.Decimal,
			Recurring:   d.Recurring.Decimal,
		}
	}
	return sample, nil
}

func normalizeIDs(ids []string) []string {
	trimmed := lo.Map(ids, func(id string, _ int) string { return strings.TrimSpace(id) })
	return lo.Uniq(lo.Compact(trimmed))
}

var (
	_ SampleSource  = (*Client)(nil)
	_ GenerationAPI = (*Client)(nil)
)
