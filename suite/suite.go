// Package suite loads data-driven test suites from YAML files.
//
// A suite file declares a tree of groups and command tests:
//
//	version: v1.0.0
//	name: smoke
//	concurrency: parallel
//	defaults:
//	  timeout: 10s
//	tests:
//	  - name: greeting
//	    run: [echo, hello]
//	    expect: hello
//	  - name: api
//	    concurrency: sequential
//	    failFast: false
//	    tests:
//	      - name: status
//	        run: [./status.sh]
//	        expect: {ok: true}
//	        retries: 2
//	        backoff: 500ms
//
// Files are validated against an embedded JSON schema before they are decoded.
package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-testkit/retry"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// SupportedMajor is the major version of the suite format this package reads
const SupportedMajor = "v1"

// Config holds the inputs of Load
type Config struct {
	Log            log.Logger
	SuiteFile      string
	DefaultTimeout time.Duration
}

// Suite is a decoded suite file
type Suite struct {
	Name    string
	Version string
	// Concurrency is the policy declared for the top-level units, nil if
	// the file does not set one.
	Concurrency types.Concurrency
	Units       []types.Named[types.TestUnit]
}

// Tests returns the number of leaf tests in the suite
func (s *Suite) Tests() int {
	return types.CountTests(s.Units)
}

type groupOptions struct {
	Concurrency string `yaml:"concurrency"`
	FailFast    *bool  `yaml:"failFast"`
	Limit       int    `yaml:"limit"`
}

type testOptions struct {
	Timeout    *time.Duration `yaml:"timeout"`
	Retries    *int           `yaml:"retries"`
	Backoff    *time.Duration `yaml:"backoff"`
	MaxBackoff *time.Duration `yaml:"maxBackoff"`
}

type suiteFile struct {
	Version      string `yaml:"version"`
	Name         string `yaml:"name"`
	groupOptions `yaml:",inline"`
	Defaults     testOptions      `yaml:"defaults"`
	Tests        []unitDefinition `yaml:"tests"`
}

// unitDefinition is either a group (tests set) or a command test (run set)
type unitDefinition struct {
	Name         string `yaml:"name"`
	groupOptions `yaml:",inline"`
	Tests        []unitDefinition `yaml:"tests"`

	testOptions `yaml:",inline"`
	Run         []string          `yaml:"run"`
	Stdin       string            `yaml:"stdin"`
	Env         map[string]string `yaml:"env"`
	Dir         string            `yaml:"dir"`
	Output      string            `yaml:"output"`
	ExitCode    int               `yaml:"exitCode"`
	Expect      yaml.Node         `yaml:"expect"`
}

func (u *unitDefinition) isGroup() bool {
	return len(u.Run) == 0
}

// Load reads, validates and decodes the suite file named by cfg
func Load(cfg Config) (*Suite, error) {
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	logger.Debug("Reading suite file", "path", cfg.SuiteFile)

	data, err := os.ReadFile(cfg.SuiteFile)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}

	s, err := Parse(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading suite %s: %w", cfg.SuiteFile, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(cfg.SuiteFile), filepath.Ext(cfg.SuiteFile))
	}
	logger.Info("Loaded suite", "name", s.Name, "version", s.Version, "units", len(s.Units), "tests", s.Tests())
	return s, nil
}

// Parse validates and decodes a suite document. Relative command directories
// resolve against the directory of cfg.SuiteFile.
func Parse(data []byte, cfg Config) (*Suite, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}

	version, err := checkVersion(file.Version)
	if err != nil {
		return nil, err
	}

	concurrency, err := file.groupOptions.concurrency()
	if err != nil {
		return nil, err
	}

	d := decoder{
		defaults:       file.Defaults,
		defaultTimeout: cfg.DefaultTimeout,
	}
	if cfg.SuiteFile != "" {
		d.baseDir = filepath.Dir(cfg.SuiteFile)
	}
	units, err := d.units(file.Tests, "")
	if err != nil {
		return nil, err
	}

	return &Suite{
		Name:        file.Name,
		Version:     version,
		Concurrency: concurrency,
		Units:       units,
	}, nil
}

// checkVersion accepts any v1 semantic version, with or without the leading v
func checkVersion(raw string) (string, error) {
	v := raw
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid suite version %q", raw)
	}
	if semver.Major(v) != SupportedMajor {
		return "", fmt.Errorf("unsupported suite version %s: only %s.x is supported", v, SupportedMajor)
	}
	return semver.Canonical(v), nil
}

func (o groupOptions) concurrency() (types.Concurrency, error) {
	switch o.Concurrency {
	case "":
		return nil, nil
	case "parallel":
		return types.Parallel{Limit: o.Limit}, nil
	case "sequential":
		return types.Sequential{FailFast: o.FailFast == nil || *o.FailFast}, nil
	default:
		return nil, fmt.Errorf("unknown concurrency %q", o.Concurrency)
	}
}

type decoder struct {
	baseDir        string
	defaults       testOptions
	defaultTimeout time.Duration
}

func (d *decoder) units(defs []unitDefinition, parent string) ([]types.Named[types.TestUnit], error) {
	units := make([]types.Named[types.TestUnit], 0, len(defs))
	for i := range defs {
		def := &defs[i]
		path := types.BuildHierarchyPath(parent, def.Name)

		var (
			u   types.TestUnit
			err error
		)
		if def.isGroup() {
			u, err = d.group(def, path)
		} else {
			u, err = d.test(def, path)
		}
		if err != nil {
			return nil, err
		}
		units = append(units, types.NewNamed(def.Name, u))
	}
	return units, nil
}

func (d *decoder) group(def *unitDefinition, path string) (*types.Group, error) {
	concurrency, err := def.groupOptions.concurrency()
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", path, err)
	}
	tests, err := d.units(def.Tests, path)
	if err != nil {
		return nil, err
	}
	return &types.Group{Concurrency: concurrency, Tests: tests}, nil
}

func (d *decoder) test(def *unitDefinition, path string) (*types.Test, error) {
	cmd := &Command{
		Argv:     def.Run,
		Stdin:    def.Stdin,
		Env:      def.Env,
		Dir:      d.dir(def.Dir),
		ExitCode: def.ExitCode,
		Output:   OutputFormat(def.Output),
	}
	if def.Expect.Kind != 0 {
		if err := def.Expect.Decode(&cmd.Expect); err != nil {
			return nil, fmt.Errorf("test %s: decoding expect: %w", path, err)
		}
		cmd.HasExpect = true
	}

	opts := d.options(def.testOptions)
	var timeout time.Duration
	if opts.Timeout != nil {
		timeout = *opts.Timeout
	} else {
		timeout = d.defaultTimeout
	}

	return &types.Test{
		Act:     cmd.Action(),
		Timeout: timeout,
		Retry:   opts.policy(),
	}, nil
}

// options fills the unset options of a test from the suite defaults
func (d *decoder) options(o testOptions) testOptions {
	if o.Timeout == nil {
		o.Timeout = d.defaults.Timeout
	}
	if o.Retries == nil {
		o.Retries = d.defaults.Retries
	}
	if o.Backoff == nil {
		o.Backoff = d.defaults.Backoff
	}
	if o.MaxBackoff == nil {
		o.MaxBackoff = d.defaults.MaxBackoff
	}
	return o
}

func (d *decoder) dir(dir string) string {
	if dir == "" || filepath.IsAbs(dir) || d.baseDir == "" {
		return dir
	}
	return filepath.Join(d.baseDir, dir)
}

// policy returns the retry policy described by the options, nil for none
func (o testOptions) policy() retry.Policy {
	if o.Retries == nil || *o.Retries == 0 {
		return nil
	}
	retries := *o.Retries

	var minDelay time.Duration
	if o.Backoff != nil {
		minDelay = *o.Backoff
	}
	switch {
	case o.MaxBackoff != nil:
		return retry.Exponential(retries, minDelay, *o.MaxBackoff)
	case o.Backoff != nil:
		return retry.Fixed(retries, minDelay)
	default:
		return retry.Limit(retries)
	}
}
