package app

import (
	"context"
	"errors"
	"fmt"

	"horde-monitor/internal/horde"
)

// SimulateHalt runs the monitor against a source that always fails, which
// drives the real halt path: archive record and notification.
func (a *App) SimulateHalt(ctx context.Context, message string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if a.newNotifier() == nil {
		return errors.New("no alert channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	source := &failingSource{err: fmt.Errorf("%w: %s", horde.ErrTransport, message)}
	svc, err := a.newService(source, nil, store)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.SetCredential("simulated")
	if err := svc.Start(ctx); err == nil {
		return errors.New("simulated failure did not halt the monitor")
	}
	a.Logger.Info().Msg("simulated halt dispatched")
	return nil
}

type failingSource struct {
	err error
}

func (s *failingSource) FetchSample(context.Context, string) (horde.Sample, error) {
	return horde.Sample{}, s.err
}

var _ horde.SampleSource = (*failingSource)(nil)
