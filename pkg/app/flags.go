package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagSets groups flags by concern so help output stays readable.
type FlagSets struct {
	order []string
	sets  map[string]*pflag.FlagSet
}

// NewFlagSets returns an empty flag set group.
func NewFlagSets() *FlagSets {
	return &FlagSets{
		sets: map[string]*pflag.FlagSet{},
	}
}

// FlagSet returns the named flag set, creating it on first use.
func (f *FlagSets) FlagSet(name string) *pflag.FlagSet {
	if fs, ok := f.sets[name]; ok {
		return fs
	}
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	f.sets[name] = fs
	f.order = append(f.order, name)
	return fs
}

// ApplyTo merges every group into the command's flag set.
func (f *FlagSets) ApplyTo(cmd *cobra.Command) {
	for _, name := range f.order {
		cmd.Flags().AddFlagSet(f.sets[name])
	}
}
