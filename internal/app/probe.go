package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"horde-monitor/internal/horde"
	"horde-monitor/internal/scheduler"
)

// Probe performs one account fetch and prints the normalized sample.
func (a *App) Probe(ctx context.Context, w io.Writer) error {
	key := strings.TrimSpace(a.Config.Horde.APIKey)
	if key == "" {
		return fmt.Errorf("%w: horde.api_key is empty", scheduler.ErrConfig)
	}

	sample, err := a.newClient().FetchSample(ctx, key)
	if err != nil {
		return err
	}
	return writeSample(w, sample)
}

func writeSample(w io.Writer, sample horde.Sample) error {
	acct := sample.Account
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Fetched at\t%s\n", sample.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Username\t%s\n", acct.Username)
	fmt.Fprintf(writer, "User ID\t%d\n", acct.ID)
	fmt.Fprintf(writer, "Kudos\t%s\n", sample.Kudos.String())
	fmt.Fprintf(writer, "Workers\t%d\n", acct.WorkerCount)
	fmt.Fprintf(writer, "Account age\t%s\n", formatAge(acct.AccountAge))
	fmt.Fprintf(writer, "Kudos accumulated\t%s\n", acct.KudosDetails.Accumulated.String())
	fmt.Fprintf(writer, "Kudos gifted\t%s\n", acct.KudosDetails.Gifted.String())
	fmt.Fprintf(writer, "Kudos received\t%s\n", acct.KudosDetails.Received.String())
	fmt.Fprintf(writer, "Kudos recurring\t%s\n", acct.KudosDetails.Recurring.String())
	fmt.Fprintf(writer, "Image generations\t%d\t%s\n", len(sample.ImageIDs), strings.Join(sample.ImageIDs, ","))
	fmt.Fprintf(writer, "Text generations\t%d\t%s\n", len(sample.TextIDs), strings.Join(sample.TextIDs, ","))
	return writer.Flush()
}

func formatAge(d time.Duration) string {
	days := int64(d / (24 * time.Hour))
	if days > 0 {
		return fmt.Sprintf("%d days", days)
	}
	return d.Truncate(time.Second).String()
}

// GenerationShow prints the status of one job as indented JSON.
func (a *App) GenerationShow(ctx context.Context, w io.Writer, kind horde.GenerationType, id string) error {
	status, err := a.newClient().GenerationStatus(ctx, kind, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// GenerationCancel asks the remote service to cancel one job.
func (a *App) GenerationCancel(ctx context.Context, kind horde.GenerationType, id string) error {
	key := strings.TrimSpace(a.Config.Horde.APIKey)
	if key == "" {
		return errors.Join(horde.ErrCancel, fmt.Errorf("%w: horde.api_key is empty", scheduler.ErrConfig))
	}
	if err := a.newClient().CancelGeneration(ctx, key, kind, id); err != nil {
		return err
	}
	a.Logger.Info().Str("type", string(kind)).Str("id", id).Msg("generation cancelled")
	return nil
}
