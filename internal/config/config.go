// Package config loads the run configuration document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/objectstore"
)

// LedgerDisabled turns the run ledger off when used as the ledger path.
const LedgerDisabled = "none"

// Default Copernicus Data Space endpoints and shared account for TROPOMI.
const (
	DefaultTropomiTokenURL     = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	DefaultTropomiCatalogueURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products"
	DefaultTropomiDownloadURL  = "https://zipper.dataspace.copernicus.eu/odata/v1/Products"
	DefaultTropomiClientID     = "cdse-public"
)

// TropomiConfig holds the archive account used for TROPOMI searches.
type TropomiConfig struct {
	User         string `yaml:"user" toml:"user"`
	Password     string `yaml:"password" toml:"password"`
	ClientID     string `yaml:"client id" toml:"client id"`
	TokenURL     string `yaml:"token url" toml:"token url"`
	CatalogueURL string `yaml:"catalogue url" toml:"catalogue url"`
	DownloadURL  string `yaml:"download url" toml:"download url"`
}

// MirrorConfig locates the TEMPO mirror: a directory or an object store.
type MirrorConfig struct {
	Path               string `yaml:"path" toml:"path"`
	objectstore.Config `yaml:",inline" toml:",inline"`
}

// RunConfig is the immutable configuration of a run.
type RunConfig struct {
	Start      time.Time
	End        time.Time
	Window     time.Duration
	Platform   string
	Instrument string
	Observable string
	OutputDir  string
	BuildDir   string
	Clean      bool
	Cache      bool

	WorkDir          string
	CredentialsDir   string
	Ledger           string
	FetchConcurrency int
	FetchLimits      map[string]int
	Thinning         float64
	QCThreshold      float64
	PythonPath       string

	Tropomi     TropomiConfig
	TempoMirror MirrorConfig
	Publish     objectstore.Config
}

// document mirrors the on-disk keys. Required keys are pointers so absence is detectable.
type document struct {
	StartDate  *string `yaml:"start date" toml:"start date"`
	EndDate    *string `yaml:"end date" toml:"end date"`
	Window     *string `yaml:"window length" toml:"window length"`
	Platform   *string `yaml:"platform" toml:"platform"`
	Instrument *string `yaml:"instrument" toml:"instrument"`
	Observable *string `yaml:"observable" toml:"observable"`
	OutputDir  *string `yaml:"path ioda out" toml:"path ioda out"`
	BuildDir   *string `yaml:"path build" toml:"path build"`
	Clean      *bool   `yaml:"clean" toml:"clean"`
	Cache      *bool   `yaml:"cache" toml:"cache"`

	WorkDir          string         `yaml:"path work" toml:"path work"`
	CredentialsDir   string         `yaml:"path credentials" toml:"path credentials"`
	Ledger           string         `yaml:"ledger" toml:"ledger"`
	FetchConcurrency *int           `yaml:"fetch concurrency" toml:"fetch concurrency"`
	FetchLimits      map[string]int `yaml:"fetch limits" toml:"fetch limits"`
	Thinning         *float64       `yaml:"thinning" toml:"thinning"`
	QCThreshold      *float64       `yaml:"qc threshold" toml:"qc threshold"`
	PythonPath       string         `yaml:"python path" toml:"python path"`

	Tropomi     TropomiConfig      `yaml:"tropomi" toml:"tropomi"`
	TempoMirror MirrorConfig       `yaml:"tempo mirror" toml:"tempo mirror"`
	Publish     objectstore.Config `yaml:"publish" toml:"publish"`
}

// DefaultConfig returns a RunConfig carrying the optional defaults.
func DefaultConfig() *RunConfig {
	wd, _ := os.Getwd()
	ledger := ""
	if home, err := os.UserHomeDir(); err == nil {
		ledger = filepath.Join(home, ".getobs", "ledger.db")
	}
	return &RunConfig{
		WorkDir:          wd,
		CredentialsDir:   wd,
		Ledger:           ledger,
		FetchConcurrency: 1,
		Thinning:         0.1,
		QCThreshold:      0.5,
		Tropomi: TropomiConfig{
			User:         "s5pguest",
			Password:     "s5pguest",
			ClientID:     DefaultTropomiClientID,
			TokenURL:     DefaultTropomiTokenURL,
			CatalogueURL: DefaultTropomiCatalogueURL,
			DownloadURL:  DefaultTropomiDownloadURL,
		},
	}
}

// Load reads a YAML or TOML (by extension) configuration file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", models.ErrInvalidConfiguration, err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %v", models.ErrInvalidConfiguration, err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %v", models.ErrInvalidConfiguration, err)
		}
	}

	cfg, err := doc.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *document) resolve() (*RunConfig, error) {
	var missing []string
	need := func(key string, present bool) {
		if !present {
			missing = append(missing, key)
		}
	}
	need("start date", d.StartDate != nil)
	need("end date", d.EndDate != nil)
	need("window length", d.Window != nil)
	need("platform", d.Platform != nil)
	need("instrument", d.Instrument != nil)
	need("observable", d.Observable != nil)
	need("path ioda out", d.OutputDir != nil)
	need("path build", d.BuildDir != nil)
	need("clean", d.Clean != nil)
	need("cache", d.Cache != nil)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required keys: %s",
			models.ErrInvalidConfiguration, strings.Join(missing, ", "))
	}

	cfg := DefaultConfig()

	var err error
	if cfg.Start, err = ParseTime(*d.StartDate); err != nil {
		return nil, fmt.Errorf("%w: start date: %v", models.ErrInvalidConfiguration, err)
	}
	if cfg.End, err = ParseTime(*d.EndDate); err != nil {
		return nil, fmt.Errorf("%w: end date: %v", models.ErrInvalidConfiguration, err)
	}
	if cfg.Window, err = ParseLength(*d.Window); err != nil {
		return nil, fmt.Errorf("%w: window length: %v", models.ErrInvalidConfiguration, err)
	}

	cfg.Platform = *d.Platform
	cfg.Instrument = strings.ToUpper(*d.Instrument)
	cfg.Observable = *d.Observable
	cfg.OutputDir = *d.OutputDir
	cfg.BuildDir = *d.BuildDir
	cfg.Clean = *d.Clean
	cfg.Cache = *d.Cache

	if d.WorkDir != "" {
		cfg.WorkDir = d.WorkDir
	}
	if d.CredentialsDir != "" {
		cfg.CredentialsDir = d.CredentialsDir
	}
	if d.Ledger != "" {
		cfg.Ledger = d.Ledger
	}
	if d.FetchConcurrency != nil {
		cfg.FetchConcurrency = *d.FetchConcurrency
	}
	cfg.FetchLimits = d.FetchLimits
	if d.Thinning != nil {
		cfg.Thinning = *d.Thinning
	}
	if d.QCThreshold != nil {
		cfg.QCThreshold = *d.QCThreshold
	}
	cfg.PythonPath = d.PythonPath

	mergeTropomi(&cfg.Tropomi, d.Tropomi)
	cfg.TempoMirror = d.TempoMirror
	cfg.Publish = d.Publish

	return cfg, nil
}

func mergeTropomi(dst *TropomiConfig, src TropomiConfig) {
	if src.User != "" {
		dst.User = src.User
		dst.Password = src.Password
	}
	if src.ClientID != "" {
		dst.ClientID = src.ClientID
	}
	if src.TokenURL != "" {
		dst.TokenURL = src.TokenURL
	}
	if src.CatalogueURL != "" {
		dst.CatalogueURL = src.CatalogueURL
	}
	if src.DownloadURL != "" {
		dst.DownloadURL = src.DownloadURL
	}
}

// Validate checks that the configuration is valid.
func (c *RunConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window length must be positive", models.ErrInvalidConfiguration)
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("%w: end date is before start date", models.ErrInvalidConfiguration)
	}
	for key, v := range map[string]string{
		"platform":      c.Platform,
		"instrument":    c.Instrument,
		"observable":    c.Observable,
		"path ioda out": c.OutputDir,
		"path build":    c.BuildDir,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s must not be empty", models.ErrInvalidConfiguration, key)
		}
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("%w: fetch concurrency must be at least 1", models.ErrInvalidConfiguration)
	}
	if c.Thinning <= 0 || c.Thinning > 1 {
		return fmt.Errorf("%w: thinning must be in (0, 1]", models.ErrInvalidConfiguration)
	}
	if c.Publish.Enabled() {
		if err := c.Publish.Validate(); err != nil {
			return fmt.Errorf("%w: publish: %v", models.ErrInvalidConfiguration, err)
		}
	}
	if c.TempoMirror.Enabled() {
		if err := c.TempoMirror.Validate(); err != nil {
			return fmt.Errorf("%w: tempo mirror: %v", models.ErrInvalidConfiguration, err)
		}
	}
	return nil
}

// LedgerEnabled reports whether runs are recorded.
func (c *RunConfig) LedgerEnabled() bool {
	return c.Ledger != "" && c.Ledger != LedgerDisabled
}

// BinDir returns the directory holding converter executables.
func (c *RunConfig) BinDir() string {
	return filepath.Join(c.BuildDir, "bin")
}

// ConverterEnv returns the child environment converters need to locate the
// IODA python bindings. Nothing is set on the current process.
func (c *RunConfig) ConverterEnv() []string {
	p := c.PythonPath
	if p == "" {
		matches, _ := filepath.Glob(filepath.Join(c.BuildDir, "lib", "python3*", "pyioda"))
		if len(matches) > 0 {
			p = matches[len(matches)-1]
		}
	}
	if p == "" {
		return nil
	}
	return []string{"PYTHONPATH=" + p + string(os.PathListSeparator) + "/usr/local/lib"}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses a timestamp; values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var lengthPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]+)$`)

var lengthUnits = map[string]time.Duration{
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"t": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
}

// ParseLength parses a window length: Go durations ("6h", "90m") or
// pandas-style offsets ("6H", "1D", "30min", "3 hours").
func ParseLength(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	m := lengthPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}
	unit, ok := lengthUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown duration unit %q", m[2])
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(n * float64(unit)), nil
}
