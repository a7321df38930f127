package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
)

// Unit systems accepted by --sync.units.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

var _ IOptions = (*SyncOptions)(nil)

// SyncOptions contains configuration for the periodic backup loop.
type SyncOptions struct {
	// Interval between the start of one successful cycle and the next.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// TransientBackoff is the wait after a network or server hiccup.
	TransientBackoff time.Duration `json:"transient-backoff" mapstructure:"transient-backoff"`

	// RateLimitBackoff is the wait after the server reports too many requests.
	RateLimitBackoff time.Duration `json:"rate-limit-backoff" mapstructure:"rate-limit-backoff"`

	// BatchLimit caps the number of sub-queries sent in one batched call.
	BatchLimit int `json:"batch-limit" mapstructure:"batch-limit"`

	// Parallelism caps concurrent per-device file writes in one cycle.
	Parallelism int `json:"parallelism" mapstructure:"parallelism"`

	// Units selects metric or imperial odometer output.
	Units string `json:"units" mapstructure:"units"`
}

// NewSyncOptions creates a SyncOptions object with default parameters.
func NewSyncOptions() *SyncOptions {
	return &SyncOptions{
		Interval:         60 * time.Second,
		TransientBackoff: 10 * time.Second,
		RateLimitBackoff: 60 * time.Second,
		BatchLimit:       fleetapi.MaxCallsPerBatch,
		Parallelism:      8,
		Units:            UnitsMetric,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SyncOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Interval <= 0 {
		errors = append(errors, fmt.Errorf("sync interval must be positive, got %v", o.Interval))
	}
	if o.TransientBackoff <= 0 {
		errors = append(errors, fmt.Errorf("sync transient backoff must be positive, got %v", o.TransientBackoff))
	}
	if o.RateLimitBackoff <= 0 {
		errors = append(errors, fmt.Errorf("sync rate limit backoff must be positive, got %v", o.RateLimitBackoff))
	}
	if o.BatchLimit < 1 || o.BatchLimit > fleetapi.MaxCallsPerBatch {
		errors = append(errors, fmt.Errorf("sync batch limit must be in [1, %d], got %d", fleetapi.MaxCallsPerBatch, o.BatchLimit))
	}
	if o.Parallelism < 1 {
		errors = append(errors, fmt.Errorf("sync parallelism must be at least 1, got %d", o.Parallelism))
	}
	if o.Units != UnitsMetric && o.Units != UnitsImperial {
		errors = append(errors, fmt.Errorf("sync units must be %q or %q, got %q", UnitsMetric, UnitsImperial, o.Units))
	}

	return errors
}

// AddFlags adds flags for SyncOptions to the specified FlagSet.
func (o *SyncOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "sync.interval", o.Interval, "Interval between successful backup cycles.")
	fs.DurationVar(&o.TransientBackoff, "sync.transient-backoff", o.TransientBackoff, "Wait before retrying after a transient failure.")
	fs.DurationVar(&o.RateLimitBackoff, "sync.rate-limit-backoff", o.RateLimitBackoff, "Wait before retrying after the server rate limits us.")
	fs.IntVar(&o.BatchLimit, "sync.batch-limit", o.BatchLimit, "Maximum sub-queries per batched server call.")
	fs.IntVar(&o.Parallelism, "sync.parallelism", o.Parallelism, "Maximum concurrent per-device file writes.")
	fs.StringVar(&o.Units, "sync.units", o.Units, "Odometer unit system, metric or imperial.")
}
