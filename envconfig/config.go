// Package envconfig reads RINGFLOW_* settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via RINGFLOW_DEBUG in the environment
	Debug bool
	// Set via RINGFLOW_TRACE in the environment
	Trace bool
	// Set via RINGFLOW_OUTPUT in the environment
	OutputDir string
	// Set via RINGFLOW_SEED in the environment
	Seed int64
	// Set via RINGFLOW_WORKERS in the environment
	Workers int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"RINGFLOW_DEBUG":   {"RINGFLOW_DEBUG", Debug, "Show additional debug information (e.g. RINGFLOW_DEBUG=1)"},
		"RINGFLOW_TRACE":   {"RINGFLOW_TRACE", Trace, "Log every training batch"},
		"RINGFLOW_OUTPUT":  {"RINGFLOW_OUTPUT", OutputDir, "Directory for plots and checkpoints (default \"runs\")"},
		"RINGFLOW_SEED":    {"RINGFLOW_SEED", Seed, "Seed for data, initialisation and sampling (default 42)"},
		"RINGFLOW_WORKERS": {"RINGFLOW_WORKERS", Workers, "Batches prepared ahead of training (default 2)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

// LoadConfig resets every setting to its default and applies the environment.
func LoadConfig() {
	Debug = false
	Trace = false
	OutputDir = "runs"
	Seed = 42
	Workers = 2

	if debug := clean("RINGFLOW_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if trace := clean("RINGFLOW_TRACE"); trace != "" {
		d, err := strconv.ParseBool(trace)
		if err == nil {
			Trace = d
		}
	}

	if out := clean("RINGFLOW_OUTPUT"); out != "" {
		OutputDir = out
	}

	if seed := clean("RINGFLOW_SEED"); seed != "" {
		s, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			slog.Error("invalid setting, ignoring", "RINGFLOW_SEED", seed, "error", err)
		} else {
			Seed = s
		}
	}

	if workers := clean("RINGFLOW_WORKERS"); workers != "" {
		w, err := strconv.Atoi(workers)
		if err != nil || w < 0 {
			slog.Error("invalid setting must be zero or greater", "RINGFLOW_WORKERS", workers, "error", err)
		} else {
			Workers = w
		}
	}
}
