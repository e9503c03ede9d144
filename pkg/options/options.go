// Package options defines reusable configuration blocks shared by the
// fleetlink commands. Each block carries its own defaults, validation and
// flag binding so command option structs stay thin.
package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every configuration block in this package.
type IOptions interface {
	// Validate checks the option values and returns every problem found.
	Validate() []error

	// AddFlags binds the options to the given flag set.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port the server can bind.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

func errEmpty(flag string) error {
	return fmt.Errorf("%s must not be empty", flag)
}
