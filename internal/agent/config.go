package agent

import (
	"fmt"

	"github.com/fleetsink-io/fleetsink/internal/backup"
	"github.com/fleetsink-io/fleetsink/internal/mirror"
	"github.com/fleetsink-io/fleetsink/internal/notifier"
	"github.com/fleetsink-io/fleetsink/internal/pkg/mqtt/paths"
	"github.com/fleetsink-io/fleetsink/internal/server"
	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
	"github.com/fleetsink-io/fleetsink/pkg/log"
	pkgmqtt "github.com/fleetsink-io/fleetsink/pkg/mqtt"
	"github.com/fleetsink-io/fleetsink/pkg/options"
)

// Config collects the option groups the agent is assembled from.
type Config struct {
	FleetOptions  *options.FleetOptions
	SyncOptions   *options.SyncOptions
	OutputOptions *options.OutputOptions
	HttpOptions   *options.HttpOptions
	MqttOptions   *options.MqttOptions
	S3Options     *options.S3Options
}

// NewAgent wires the fleet client, the backup pipeline, the ops server
// and the optional side channels into a runnable agent.
func (cfg *Config) NewAgent() (*Agent, error) {
	clientCfg := cfg.FleetOptions.ToClientConfig()
	clientCfg.Logger = log.Logr()
	client, err := fleetapi.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init fleet client: %w", err)
	}

	units, err := backup.ParseUnitSystem(cfg.SyncOptions.Units)
	if err != nil {
		return nil, err
	}

	writer := backup.NewWriter(cfg.OutputOptions.Dir)
	source := backup.NewAPISource(client, cfg.SyncOptions.BatchLimit)
	orchestrator := backup.NewOrchestrator(source, backup.NewTracker(), writer, units, cfg.SyncOptions.Parallelism)

	status := server.NewStatus()

	a := &Agent{
		writer: writer,
		status: status,
	}
	if cfg.HttpOptions.Enabled() {
		a.httpSrv = server.NewServer(cfg.HttpOptions, status)
	}

	if cfg.MqttOptions.Enabled() {
		mqttCfg := cfg.MqttOptions.ToClientConfig()
		mqttCfg.WillTopic = paths.Join(cfg.MqttOptions.TopicRoot, paths.Offline)
		mqttCfg.WillPayload = []byte(fmt.Sprintf(`{"clientId":%q}`, mqttCfg.ClientID))
		mqttCfg.WillQoS = 1
		mqttClient, err := pkgmqtt.NewClient(mqttCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.mqttClient = mqttClient
		a.notifier = notifier.New(mqttClient, cfg.MqttOptions.TopicRoot)
	}

	if cfg.S3Options.Enabled() {
		m, err := mirror.New(cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init object storage: %w", err)
		}
		a.mirror = m
	}

	a.scheduler = backup.NewScheduler(backup.SchedulerConfig{
		Authenticator:    client,
		Runner:           orchestrator,
		Interval:         cfg.SyncOptions.Interval,
		TransientBackoff: cfg.SyncOptions.TransientBackoff,
		RateLimitBackoff: cfg.SyncOptions.RateLimitBackoff,
		OnReport:         a.handleReport,
		OnStateChange:    status.SetState,
	})
	return a, nil
}
