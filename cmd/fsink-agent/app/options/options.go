package options

import (
	"go.uber.org/multierr"

	"github.com/fleetsink-io/fleetsink/internal/agent"
	"github.com/fleetsink-io/fleetsink/pkg/app"
	"github.com/fleetsink-io/fleetsink/pkg/log"
	"github.com/fleetsink-io/fleetsink/pkg/options"
)

// AgentOptions is the full flag and configuration surface of fsink-agent.
type AgentOptions struct {
	FleetOptions  *options.FleetOptions  `json:"fleet" mapstructure:"fleet"`
	SyncOptions   *options.SyncOptions   `json:"sync" mapstructure:"sync"`
	OutputOptions *options.OutputOptions `json:"output" mapstructure:"output"`
	HttpOptions   *options.HttpOptions   `json:"serve" mapstructure:"serve"`
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	S3Options     *options.S3Options     `json:"s3" mapstructure:"s3"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		FleetOptions:  options.NewFleetOptions(),
		SyncOptions:   options.NewSyncOptions(),
		OutputOptions: options.NewOutputOptions(),
		HttpOptions:   options.NewHttpOptions(),
		MqttOptions:   options.NewMqttOptions(),
		S3Options:     options.NewS3Options(),
		Log:           log.NewOptions(),
	}
}

func (o *AgentOptions) Flags() app.NamedFlagSets {
	fss := app.NamedFlagSets{}
	o.FleetOptions.AddFlags(fss.FlagSet("fleet"))
	o.SyncOptions.AddFlags(fss.FlagSet("sync"))
	o.OutputOptions.AddFlags(fss.FlagSet("output"))
	o.HttpOptions.AddFlags(fss.FlagSet("serve"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete captures the positional credentials:
// SERVER DATABASE USERNAME PASSWORD.
func (o *AgentOptions) Complete(args []string) error {
	return o.FleetOptions.Complete(args)
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.FleetOptions.Validate()...)
	errs = append(errs, o.SyncOptions.Validate()...)
	errs = append(errs, o.OutputOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return multierr.Combine(errs...)
}

// LogOptions exposes the logger configuration to the app runner.
func (o *AgentOptions) LogOptions() *log.Options {
	return o.Log
}

// Config assembles the agent wiring configuration.
func (o *AgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		FleetOptions:  o.FleetOptions,
		SyncOptions:   o.SyncOptions,
		OutputOptions: o.OutputOptions,
		HttpOptions:   o.HttpOptions,
		MqttOptions:   o.MqttOptions,
		S3Options:     o.S3Options,
	}, nil
}
