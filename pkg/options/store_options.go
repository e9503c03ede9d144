package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

// Credential store backends.
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// StoreOptions selects where persisted session cookies live between restarts.
type StoreOptions struct {
	// Backend is "file" or "redis".
	Backend string `json:"backend" mapstructure:"backend"`

	// Path is the blob file location for the file backend.
	Path string `json:"path" mapstructure:"path"`

	// Addr, Password and DB configure the redis backend.
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// NewStoreOptions creates a StoreOptions object with default parameters.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend: StoreBackendFile,
		Path:    "/var/lib/fleetlink/session.json",
		Addr:    "localhost:6379",
	}
}

func (o *StoreOptions) Validate() []error {
	errors := []error{}

	switch o.Backend {
	case StoreBackendFile:
		if o.Path == "" {
			errors = append(errors, errEmpty("store.path"))
		}
	case StoreBackendRedis:
		if err := ValidateAddress(o.Addr); err != nil {
			errors = append(errors, err)
		}
	default:
		errors = append(errors, fmt.Errorf("unknown store backend %q", o.Backend))
	}

	return errors
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "store.backend", o.Backend, "Credential store backend ('file' or 'redis').")
	fs.StringVar(&o.Path, "store.path", o.Path, "Session blob path for the file backend.")
	fs.StringVar(&o.Addr, "store.addr", o.Addr, "Redis address for the redis backend.")
	fs.StringVar(&o.Password, "store.password", o.Password, "Redis password for the redis backend.")
	fs.IntVar(&o.DB, "store.db", o.DB, "Redis database number for the redis backend.")
}
