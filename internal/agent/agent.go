// Package agent assembles the fleet backup process: the fleet API
// client, the cycle scheduler, the ops HTTP server and the optional
// MQTT and object storage side channels.
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetsink-io/fleetsink/internal/backup"
	"github.com/fleetsink-io/fleetsink/internal/mirror"
	"github.com/fleetsink-io/fleetsink/internal/notifier"
	"github.com/fleetsink-io/fleetsink/internal/server"
	"github.com/fleetsink-io/fleetsink/pkg/log"
	"github.com/fleetsink-io/fleetsink/pkg/mqtt"
)

// reportTimeout bounds the side channel work after each cycle.
const reportTimeout = 10 * time.Second

// Agent is the long-running backup process.
type Agent struct {
	scheduler *backup.Scheduler
	writer    *backup.Writer
	status    *server.Status
	httpSrv   *server.Server

	// Optional side channels, nil when not configured.
	mqttClient mqtt.Client
	notifier   *notifier.Notifier
	mirror     *mirror.Mirror
}

// Run starts the ops server and the sync loop and blocks until the
// context is canceled or the sync loop fails fatally.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting fleet backup agent", "backupDir", a.writer.Dir())

	if a.mqttClient != nil {
		if err := a.mqttClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start mqtt client: %w", err)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.mqttClient.Disconnect(dctx)
		}()

		// The broker is a telemetry side channel; an unreachable one must
		// not hold up the backup loop.
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.mqttClient.AwaitConnection(waitCtx); err != nil {
			log.Warn("MQTT broker not reachable yet, telemetry will retry in the background", "err", err)
		} else {
			log.Info("MQTT Connected")
		}
		cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.httpSrv != nil {
		g.Go(func() error { return a.httpSrv.Start(ctx) })
	}
	g.Go(func() error { return a.scheduler.Run(ctx) })
	return g.Wait()
}

// handleReport feeds each finished cycle to the status page and the side
// channels. It runs on the scheduler goroutine between cycles, on its own
// deadline detached from the run context so the final cycle of a shutdown
// still gets reported.
func (a *Agent) handleReport(report backup.CycleReport, err error) {
	a.status.RecordCycle(report, err)

	if a.notifier == nil && a.mirror == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if a.notifier != nil {
		a.notifier.PublishCycle(ctx, report, err)
	}
	if a.mirror != nil && len(report.Written) > 0 {
		files := make(map[string]string, len(report.Written))
		for _, id := range report.Written {
			path := a.writer.Path(id)
			files[filepath.Base(path)] = path
		}
		if uerr := a.mirror.UploadFiles(ctx, files); uerr != nil {
			log.Error(uerr, "Mirroring cycle output failed", "cycle", report.ID)
		}
	}
}
