package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
)

var _ IOptions = (*FleetOptions)(nil)

// FleetOptions carries the connection parameters for the fleet telemetry
// server. Server, Database, Username and Password come from the positional
// command line arguments rather than flags.
type FleetOptions struct {
	Server   string `json:"server" mapstructure:"server"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`

	// Timeout bounds a single HTTP round trip to the server.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// InsecureSkipVerify controls whether the client verifies the server's
	// certificate chain and host name. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewFleetOptions creates a FleetOptions object with default parameters.
func NewFleetOptions() *FleetOptions {
	return &FleetOptions{
		Timeout: 30 * time.Second,
	}
}

// Complete fills in the credential fields from the positional arguments
// <server> <database> <username> <password>.
func (o *FleetOptions) Complete(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("expected 4 arguments <server> <database> <username> <password>, got %d", len(args))
	}

	o.Server = args[0]
	o.Database = args[1]
	o.Username = args[2]
	o.Password = args[3]

	return nil
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *FleetOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Server == "" {
		errors = append(errors, fmt.Errorf("fleet server must not be empty"))
	}
	if o.Database == "" {
		errors = append(errors, fmt.Errorf("fleet database must not be empty"))
	}
	if o.Username == "" {
		errors = append(errors, fmt.Errorf("fleet username must not be empty"))
	}
	if o.Timeout <= 0 {
		errors = append(errors, fmt.Errorf("fleet timeout must be positive, got %v", o.Timeout))
	}

	return errors
}

// AddFlags adds flags for FleetOptions to the specified FlagSet.
func (o *FleetOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Timeout, "fleet.timeout", o.Timeout, "Timeout for a single request to the fleet server.")
	fs.BoolVar(&o.InsecureSkipVerify, "fleet.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}

// ToClientConfig converts the options into a fleet API client
// configuration. The caller attaches its own logger.
func (o *FleetOptions) ToClientConfig() *fleetapi.Config {
	return &fleetapi.Config{
		Server:             o.Server,
		Database:           o.Database,
		Username:           o.Username,
		Password:           o.Password,
		Timeout:            o.Timeout,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
