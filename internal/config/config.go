// Package config defines the JSON-serializable job model for docpump. A job
// names one source database, an ordered list of commands to run against it,
// the tuning shared by those commands, the sink documents are written to and
// an optional metrics backend.
//
// Job files are JSON; comments and trailing commas (JSONC) are accepted.
//
// Example (trimmed):
//
//	{
//	  "name":   "products",
//	  "source": { "kind": "postgres", "dsn": "postgres://..." },
//	  "commands": [
//	    { "statement": "select id as _id, name, tag as \"tags[]\" from product join tag using (id) order by id" },
//	    { "statement": "update product set exported_at = ? where exported_at is null", "parameter": ["$now"], "write": true }
//	  ],
//	  "tuning": { "fetch_size": -1, "scale": 2, "rounding": "half_up", "timezone": "Europe/Berlin" },
//	  "sink":   { "kind": "bulk", "path": "out/products.ndjson", "default_index": "products" }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tailscale/hujson"
)

// Job is the top-level object decoded from a job file.
type Job struct {
	// Name labels metrics and log lines and is bound to the $job placeholder.
	Name     string    `json:"name"`
	Source   Source    `json:"source"`
	Commands []Command `json:"commands"`
	Tuning   Tuning    `json:"tuning"`
	Sink     Sink      `json:"sink"`
	Metrics  Metrics   `json:"metrics"`
}

// Source selects the relational engine rows are read from.
type Source struct {
	// Kind selects the dialect: "postgres", "mssql", "mysql" or "sqlite".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
	// ReadOnly opens read transactions read-only (ignored in autocommit).
	ReadOnly   bool `json:"read_only"`
	AutoCommit bool `json:"autocommit"`
}

// Command is one statement of a job.
type Command struct {
	// Name labels the command in metrics; defaults to "command[i]".
	Name      string `json:"name"`
	Statement string `json:"statement"`
	// Parameters are bound in order. "$"-prefixed entries are placeholders
	// resolved at execution time; anything else is bound as a string.
	Parameters []string `json:"parameter"`
	// Write marks insert/update/delete statements run on the write
	// connection.
	Write bool `json:"write"`
	// Callable marks stored procedure calls.
	Callable bool `json:"callable"`
	// Register maps output parameter names of a callable to their position,
	// value type and the document field they fill.
	Register map[string]Register `json:"register"`
}

// Register is one output parameter of a callable command.
type Register struct {
	// Position is the 1-based parameter position.
	Position int    `json:"position"`
	Type     string `json:"type"`
	Field    string `json:"field"`
}

// Tuning controls how commands fetch and normalize values.
type Tuning struct {
	// FetchSize is validated but not applied: database/sql drivers stream
	// rows as they are read.
	FetchSize    int      `json:"fetch_size"`
	MaxRows      int64    `json:"max_rows"`
	MaxRetries   int      `json:"max_retries"`
	MaxRetryWait Duration `json:"max_retry_wait"`
	QueryTimeout Duration `json:"query_timeout"`
	// ResultSetType and ResultSetConcurrency accept the forward-only and
	// read-only modes; scrolling and updatable cursors are rejected.
	ResultSetType        string `json:"result_set_type"`
	ResultSetConcurrency string `json:"result_set_concurrency"`
	// Scale is the number of fractional digits for fixed decimals. Nil keeps
	// decimals exact.
	Scale        *int   `json:"scale"`
	Rounding     string `json:"rounding"`
	Locale       string `json:"locale"`
	Timezone     string `json:"timezone"`
	BinaryAsText bool   `json:"binary_as_text"`
	MaxLOBLength int64  `json:"max_lob_length"`
	// ColumnNameMap renames result labels before they are read as paths.
	ColumnNameMap map[string]string `json:"column_name_map"`
	ForceArray    bool              `json:"force_array"`
}

// ScaleOrDefault returns the configured scale, or -1 for exact decimals.
func (t Tuning) ScaleOrDefault() int {
	if t.Scale == nil {
		return -1
	}
	return *t.Scale
}

// Sink selects where completed documents are written.
type Sink struct {
	// Kind selects the sink implementation: "bulk", "sqlite" or "postgres".
	Kind             string  `json:"kind"`
	DSN              string  `json:"dsn"`
	Table            string  `json:"table"`
	Path             string  `json:"path"`
	BatchSize        int     `json:"batch_size"`
	MaxDocsPerSecond float64 `json:"max_docs_per_second"`
	AutoCreateTable  bool    `json:"auto_create_table"`
	// DefaultIndex and DefaultType apply to documents without _index/_type.
	DefaultIndex string `json:"default_index"`
	DefaultType  string `json:"default_type"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "", "none", "prometheus" or "datadog".
	Backend string `json:"backend"`
	// Options is interpreted by the backend. Prometheus reads "url";
	// Datadog reads "addr", "namespace" and "tags".
	Options Options `json:"options"`
}

// Duration is a time.Duration that decodes from a Go duration string
// ("1m30s") or a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("config: duration %s: want a string or seconds", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Options is a small helper to fetch typed values from an arbitrary JSON
// object. It performs minimal coercion and returns the provided default when
// a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Non-string elements are skipped; nil when missing.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object into an empty, non-nil
// Options.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// lookupEnv is a test seam.
var lookupEnv = os.LookupEnv

// Load reads and decodes the job file at path and applies environment
// overrides.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	j, err := Parse(b)
	if err != nil {
		return Job{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return j, nil
}

// Parse decodes a JSON or JSONC job. Unknown fields are rejected.
func Parse(b []byte) (Job, error) {
	std, err := hujson.Standardize(b)
	if err != nil {
		return Job{}, fmt.Errorf("parse: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	var j Job
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("decode: %w", err)
	}
	applyEnv(&j)
	return j, nil
}

// applyEnv overrides secrets and deployment specifics from the environment:
// DOCPUMP_SOURCE_DSN, METRICS_BACKEND, PUSHGATEWAY_URL and DD_AGENT_ADDR.
func applyEnv(j *Job) {
	if v, ok := lookupEnv("DOCPUMP_SOURCE_DSN"); ok && v != "" {
		j.Source.DSN = v
	}
	if v, ok := lookupEnv("METRICS_BACKEND"); ok && v != "" {
		j.Metrics.Backend = v
	}
	if j.Metrics.Options == nil {
		j.Metrics.Options = Options{}
	}
	if v, ok := lookupEnv("PUSHGATEWAY_URL"); ok && v != "" {
		j.Metrics.Options["url"] = v
	}
	if v, ok := lookupEnv("DD_AGENT_ADDR"); ok && v != "" {
		j.Metrics.Options["addr"] = v
	}
}
