package app

import (
	"github.com/spf13/pflag"
)

// NamedFlagSets holds flag sets grouped by section, in registration
// order, so help output can present them group by group.
type NamedFlagSets struct {
	// Order lists the section names in the order they were created.
	Order []string
	// FlagSets maps a section name to its flag set.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set for the given section, creating it when
// needed.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}

// NamedFlagSetOptions abstracts an application's configuration sources:
// grouped command line flags, completion from positional arguments and
// validation before the run function starts.
type NamedFlagSetOptions interface {
	// Flags returns the command line flags grouped by section.
	Flags() NamedFlagSets

	// Complete fills in fields derived from positional arguments.
	Complete(args []string) error

	// Validate checks the assembled configuration.
	Validate() error
}
