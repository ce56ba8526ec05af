// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package config holds the supervisor's immutable, post-init
// configuration (spec §3) and the two ways to build one: CLI flags (the
// bit-compatible surface in spec §6) or an optional YAML file, mirroring
// the layered config the teacher's syz-cluster app loads with
// gopkg.in/yaml.v3.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FilePlaceholder is the literal argv token substituted with the
// prepared input's path for each run (spec §3, §6).
const FilePlaceholder = "___FILE___"

// DynFileMethod selects one of the dynamic-feedback counter sources
// (spec §3). The zero value set (empty) means feedback is disabled.
type DynFileMethod string

const (
	InstrCount  DynFileMethod = "INSTR_COUNT"
	BranchCount DynFileMethod = "BRANCH_COUNT"
	UniqueBlock DynFileMethod = "UNIQUE_BLOCK"
	UniqueEdge  DynFileMethod = "UNIQUE_EDGE"
	Custom      DynFileMethod = "CUSTOM"
)

// Config is immutable once the loader returned by Flags has built it;
// every component receives it by
// pointer for read-only access, never by value copy of its slices.
type Config struct {
	Cmdline []string

	InputPath string
	WorkDir   string
	FileExtn  string
	MaxFileSz int64
	FlipRate  float64

	ThreadsMax   int
	MutationsMax uint64
	TimeoutS     int

	FuzzStdin  bool
	NullStdio  bool
	SaveUnique bool
	Verifier   bool

	DynFileMethods []DynFileMethod
	ExternalCmd    string

	Dictionary         [][]byte
	StackhashBlacklist []uint64 // must stay sorted; Validate enforces it
	SymbolBlacklist    map[string]bool
	SymbolWhitelist    map[string]bool

	// DisableRandomization makes cmd/hfuzz set ADDR_NO_RANDOMIZE
	// (target.DisableASLR) before any target is launched, per
	// SPEC_FULL §5/§6.
	DisableRandomization bool

	// ConfigFile records which -configfile (if any) contributed to this
	// Config, purely informational (e.g. for a startup log line).
	ConfigFile string
}

// yamlConfig mirrors the subset of Config fields worth setting from a
// file: dictionaries and blacklists are typically checked into a repo
// and are unwieldy as repeated -w/-B flags.
type yamlConfig struct {
	Cmdline              []string `yaml:"cmdline"`
	InputPath            string   `yaml:"input_path"`
	WorkDir              string   `yaml:"work_dir"`
	FileExtn             string   `yaml:"file_extn"`
	MaxFileSz            int64    `yaml:"max_file_sz"`
	FlipRate             float64  `yaml:"flip_rate"`
	ThreadsMax           int      `yaml:"threads_max"`
	MutationsMax         uint64   `yaml:"mutations_max"`
	TimeoutS             int      `yaml:"timeout_s"`
	FuzzStdin            bool     `yaml:"fuzz_stdin"`
	NullStdio            bool     `yaml:"null_stdio"`
	SaveUnique           bool     `yaml:"save_unique"`
	Verifier             bool     `yaml:"verifier"`
	DynFileMethods       []string `yaml:"dyn_file_method"`
	ExternalCmd          string   `yaml:"external_command"`
	Dictionary           []string `yaml:"dictionary"`
	StackhashBlacklist   []uint64 `yaml:"stackhash_blacklist"`
	SymbolBlacklist      []string `yaml:"symbol_blacklist"`
	SymbolWhitelist      []string `yaml:"symbol_whitelist"`
	DisableRandomization bool     `yaml:"disable_randomization"`
}

// Error is a startup-time ConfigError (spec §7): fatal, printed then the
// process exits non-zero. It is a distinct type (rather than a bare
// fmt.Errorf) so callers can tell a config problem apart from an I/O
// error while probing the corpus.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Flags binds the CLI surface from spec §6 to a FlagSet and returns a
// closure that produces the resulting Config once flag.Parse has run.
// An optional -configfile is applied on top of the flag values: scalar
// and string fields the file sets replace the flag values, whether or
// not those flags were given explicitly; boolean fields are combined
// with the flag values; list and set fields are merged, except that
// -w and -B, when given, replace the file's dictionary and blacklist.
func Flags(fs *flag.FlagSet) func() (*Config, error) {
	var (
		input        = fs.String("f", "", "input file or directory")
		nullStdio    = fs.Bool("q", false, "nullify target stdio")
		fuzzStdin    = fs.Bool("s", false, "feed input via stdin instead of argv")
		saveAll      = fs.Bool("u", false, "save all crashes, not just unique ones")
		extn         = fs.String("e", "fuzz", "input file extension")
		workspace    = fs.String("W", ".", "workspace directory")
		flipRate     = fs.Float64("r", 0.001, "byte flip rate")
		wordlist     = fs.String("w", "", "dictionary file")
		symbolsBl    = fs.String("b", "", "comma-separated symbol blacklist")
		symbolsWl    = fs.String("A", "", "comma-separated symbol whitelist")
		stackhashBl  = fs.String("B", "", "comma-separated stackhash blacklist (hex)")
		mutateCmd    = fs.String("c", "", "external mutator command")
		timeout      = fs.Int("t", 3, "per-run timeout in seconds")
		threads      = fs.Int("n", 1, "number of worker threads")
		iterations   = fs.Uint64("N", 0, "mutation count bound, 0 = unbounded")
		maxFileSz    = fs.Int64("F", 1<<20, "maximum input size in bytes")
		verifier     = fs.Bool("V", false, "re-run crashes to confirm they reproduce")
		disableAslr  = fs.Bool("disable-aslr", false, "disable target ASLR before exec")
		configFile   = fs.String("configfile", "", "optional YAML config file, applied on top of the flag values")
		perfInstr    = fs.Bool("linux_perf_instr", false, "collect instruction-count feedback")
		perfBranch   = fs.Bool("linux_perf_branch", false, "collect branch-count feedback")
		perfIP       = fs.Bool("linux_perf_ip", false, "collect unique-block feedback")
		perfIPAddr   = fs.Bool("linux_perf_ip_addr", false, "collect unique-edge feedback")
		perfCustom   = fs.Bool("linux_perf_custom", false, "collect custom feedback")
	)

	return func() (*Config, error) {
		cfg := &Config{
			InputPath:            *input,
			WorkDir:              *workspace,
			FileExtn:             *extn,
			MaxFileSz:            *maxFileSz,
			FlipRate:             *flipRate,
			ThreadsMax:           *threads,
			MutationsMax:         *iterations,
			TimeoutS:             *timeout,
			FuzzStdin:            *fuzzStdin,
			NullStdio:            *nullStdio,
			SaveUnique:           !*saveAll,
			Verifier:             *verifier,
			ExternalCmd:          *mutateCmd,
			SymbolBlacklist:      splitSet(*symbolsBl),
			SymbolWhitelist:      splitSet(*symbolsWl),
			DisableRandomization: *disableAslr,
			Cmdline:              fs.Args(),
			ConfigFile:           *configFile,
		}
		if *configFile != "" {
			if err := applyYAMLFile(cfg, *configFile); err != nil {
				return nil, err
			}
		}
		if *wordlist != "" {
			dict, err := loadDictionary(*wordlist)
			if err != nil {
				return nil, err
			}
			cfg.Dictionary = dict
		}
		if *stackhashBl != "" {
			bl, err := parseHashList(*stackhashBl)
			if err != nil {
				return nil, err
			}
			cfg.StackhashBlacklist = bl
		}
		for method, on := range map[DynFileMethod]bool{
			InstrCount:  *perfInstr,
			BranchCount: *perfBranch,
			UniqueBlock: *perfIP,
			UniqueEdge:  *perfIPAddr,
			Custom:      *perfCustom,
		} {
			if on {
				cfg.DynFileMethods = append(cfg.DynFileMethods, method)
			}
		}
		return cfg, Validate(cfg)
	}
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return configErrorf("reading config file: %v", err)
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return configErrorf("parsing config file: %v", err)
	}
	if len(y.Cmdline) > 0 {
		cfg.Cmdline = y.Cmdline
	}
	if y.InputPath != "" {
		cfg.InputPath = y.InputPath
	}
	if y.WorkDir != "" {
		cfg.WorkDir = y.WorkDir
	}
	if y.FileExtn != "" {
		cfg.FileExtn = y.FileExtn
	}
	if y.MaxFileSz != 0 {
		cfg.MaxFileSz = y.MaxFileSz
	}
	if y.FlipRate != 0 {
		cfg.FlipRate = y.FlipRate
	}
	if y.ThreadsMax != 0 {
		cfg.ThreadsMax = y.ThreadsMax
	}
	if y.MutationsMax != 0 {
		cfg.MutationsMax = y.MutationsMax
	}
	if y.TimeoutS != 0 {
		cfg.TimeoutS = y.TimeoutS
	}
	cfg.FuzzStdin = cfg.FuzzStdin || y.FuzzStdin
	cfg.NullStdio = cfg.NullStdio || y.NullStdio
	cfg.SaveUnique = cfg.SaveUnique && (y.SaveUnique || !y.Verifier)
	cfg.Verifier = cfg.Verifier || y.Verifier
	cfg.DisableRandomization = cfg.DisableRandomization || y.DisableRandomization
	if y.ExternalCmd != "" {
		cfg.ExternalCmd = y.ExternalCmd
	}
	for _, m := range y.DynFileMethods {
		cfg.DynFileMethods = append(cfg.DynFileMethods, DynFileMethod(m))
	}
	for _, s := range y.Dictionary {
		cfg.Dictionary = append(cfg.Dictionary, []byte(s))
	}
	if len(y.StackhashBlacklist) > 0 {
		cfg.StackhashBlacklist = append(cfg.StackhashBlacklist, y.StackhashBlacklist...)
	}
	mergeSet(&cfg.SymbolBlacklist, y.SymbolBlacklist)
	mergeSet(&cfg.SymbolWhitelist, y.SymbolWhitelist)
	return nil
}

func mergeSet(dst *map[string]bool, items []string) {
	if len(items) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]bool, len(items))
	}
	for _, s := range items {
		(*dst)[s] = true
	}
}

// Validate enforces the data-model invariants from spec §3 that flag
// defaults cannot express: exactly one preparation strategy, a
// sorted blacklist, and a well-formed placeholder count.
func Validate(cfg *Config) error {
	if cfg.ThreadsMax < 1 {
		return configErrorf("threads_max must be >= 1, got %d", cfg.ThreadsMax)
	}
	if cfg.FlipRate < 0 || cfg.FlipRate > 1 {
		return configErrorf("flip_rate must be in [0,1], got %v", cfg.FlipRate)
	}
	dynamicOn := len(cfg.DynFileMethods) > 0
	externalOn := cfg.ExternalCmd != ""
	if dynamicOn && externalOn {
		return configErrorf("dynamic feedback and external mutator are mutually exclusive")
	}
	if cfg.InputPath == "" && !dynamicOn && !externalOn {
		return configErrorf("input_path is required unless dynamic feedback or an external command is configured")
	}
	if !sort.SliceIsSorted(cfg.StackhashBlacklist, func(i, j int) bool {
		return cfg.StackhashBlacklist[i] < cfg.StackhashBlacklist[j]
	}) {
		return configErrorf("stackhash_blacklist must be sorted ascending")
	}
	placeholders := 0
	for _, tok := range cfg.Cmdline {
		if tok == FilePlaceholder {
			placeholders++
		}
	}
	if placeholders > 1 {
		return configErrorf("cmdline must contain at most one %s token, got %d", FilePlaceholder, placeholders)
	}
	if !cfg.FuzzStdin && placeholders == 0 && len(cfg.Cmdline) > 0 {
		return configErrorf("cmdline must contain %s unless fuzz_stdin is set", FilePlaceholder)
	}
	return nil
}

func splitSet(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	set := make(map[string]bool)
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				set[csv[start:i]] = true
			}
			start = i + 1
		}
	}
	return set
}
