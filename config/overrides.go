package config

import (
	"strings"
)

// Overrides carries command-line settings. Empty strings and nil pointers
// leave the loaded value alone.
type Overrides struct {
	LogLevel string
	Provider string
	Universe string // builtin name, or "file"/"csv"/"list"
	File     string
	Symbols  string // comma-separated
	Strategy string
	Mode     string
	CSV      string
	Chart    string

	Window       *int
	Workers      *int
	LookbackDays *int
	NoCSV        bool
}

// Apply merges o into c and revalidates. A symbol list or file implies
// the matching universe source.
func (c *Config) Apply(o Overrides) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.LogLevel, strings.ToLower(o.LogLevel))
	set(&c.Provider, strings.ToLower(o.Provider))
	set(&c.Universe.Source, strings.ToLower(o.Universe))
	set(&c.Strategy.Name, o.Strategy)
	set(&c.Scan.Mode, strings.ToLower(o.Mode))
	set(&c.Output.CSV, o.CSV)
	set(&c.Output.Chart, o.Chart)

	if o.File != "" {
		c.Universe.File = o.File
		c.Universe.Source = "file"
	}
	if o.Symbols != "" {
		c.Universe.Symbols = SplitList(o.Symbols)
		c.Universe.Source = "list"
	}
	if o.Window != nil {
		c.Scan.Window = *o.Window
		if c.Scan.Mode == "latest" && *o.Window > 0 {
			c.Scan.Mode = "window"
		}
	}
	if o.Workers != nil {
		c.Scan.Workers = *o.Workers
	}
	if o.LookbackDays != nil {
		c.Scan.LookbackDays = *o.LookbackDays
	}
	if o.NoCSV {
		c.Output.CSV = ""
	}
	return c.Validate()
}
