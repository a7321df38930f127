package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OutputOptions)(nil)

// OutputOptions contains configuration for the local backup directory.
type OutputOptions struct {
	// Dir is the directory holding one CSV file per device.
	Dir string `json:"dir" mapstructure:"dir"`
}

// NewOutputOptions creates an OutputOptions object with default parameters.
func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Dir: "backups",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *OutputOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Dir == "" {
		errors = append(errors, fmt.Errorf("output dir must not be empty"))
	}

	return errors
}

// AddFlags adds flags for OutputOptions to the specified FlagSet.
func (o *OutputOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Dir, "output.dir", o.Dir, "Directory for per-device CSV backup files.")
}
