package kernel

import "context"
import "fmt"

import "github.com/viant/afs"
import "gopkg.in/yaml.v3"

// Config is the boot configuration of the kernel. It can be decoded from
// YAML or JSON; fields left out keep their defaults.
type Config struct {
	// physical memory frames
	Physpages int `json:"physpages" yaml:"physpages"`
	// stack pages given to every process
	Stackpages int `json:"stackpages" yaml:"stackpages"`
	// afs URL of the file store
	Fsroot string `json:"fsroot" yaml:"fsroot"`
	// the first program run, and its arguments
	Shell     string   `json:"shell" yaml:"shell"`
	Shellargs []string `json:"shellargs" yaml:"shellargs"`
	Loglevel  string   `json:"loglevel" yaml:"loglevel"`
	// live processes allowed at once
	Maxprocs int `json:"maxprocs" yaml:"maxprocs"`
	// "" disables tracing, "-" traces to stderr, anything else is a file
	Trace string `json:"trace" yaml:"trace"`
}

func DefaultConfig() *Config {
	return &Config{
		Physpages:  64,
		Stackpages: 8,
		Fsroot:     "mem://localhost/ukern",
		Shell:      "sh",
		Loglevel:   "info",
		Maxprocs:   1 << 10,
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Physpages <= 0 {
		return fmt.Errorf("physpages must be > 0")
	}
	if c.Stackpages <= 0 {
		return fmt.Errorf("stackpages must be > 0")
	}
	if c.Maxprocs <= 0 {
		return fmt.Errorf("maxprocs must be > 0")
	}
	if c.Fsroot == "" {
		return fmt.Errorf("fsroot is required")
	}
	if c.Shell == "" {
		return fmt.Errorf("shell is required")
	}
	switch c.Loglevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown loglevel %q", c.Loglevel)
	}
	return nil
}

// downloads and decodes the YAML configuration at URL over the defaults.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
