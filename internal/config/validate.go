package config

import (
	"fmt"
	"sort"
	"strings"

	"docpump/internal/value"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Job.
//
// Path is a dotted path into the config (e.g. "sink.kind",
// "commands[1].register.total.position").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation of a Job. It does not mutate the
// job; callers decide whether warnings are fatal.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "name",
			Message:  "name must not be empty; it labels metrics and is bound to $job",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateCommands(j.Commands)...)
	issues = append(issues, validateTuning(j.Tuning)...)
	issues = append(issues, validateSink(j.Sink)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	// Unknown kinds are warnings; the registry has the final say at run time.
	known := map[string]struct{}{
		"postgres": {},
		"mssql":    {},
		"mysql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching dialect is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.dsn",
			Message:  "source.dsn must not be empty (or set DOCPUMP_SOURCE_DSN)",
		})
	}
	if s.ReadOnly && s.AutoCommit {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.read_only",
			Message:  "read_only has no effect with autocommit",
		})
	}
	if s.ReadOnly && !s.AutoCommit && strings.EqualFold(s.Kind, "mssql") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.read_only",
			Message:  "SQL Server does not support read-only transactions; read_only is ignored",
		})
	}

	return issues
}

func validateCommands(cmds []Command) []Issue {
	var issues []Issue

	if len(cmds) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "commands",
			Message:  "at least one command is required",
		})
		return issues
	}

	names := map[string]int{}
	for i, c := range cmds {
		base := fmt.Sprintf("commands[%d]", i)
		if strings.TrimSpace(c.Statement) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".statement",
				Message:  "statement must not be empty",
			})
		}
		if c.Name != "" {
			if prev, ok := names[c.Name]; ok {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     base + ".name",
					Message:  fmt.Sprintf("name %q is also used by commands[%d]; their metrics merge", c.Name, prev),
				})
			} else {
				names[c.Name] = i
			}
		}
		if c.Write && c.Callable {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base,
				Message:  "a command cannot be both write and callable",
			})
		}
		if len(c.Register) > 0 && !c.Callable {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".register",
				Message:  "register requires callable",
			})
		}
		issues = append(issues, validateRegisters(base, c)...)
	}

	return issues
}

func validateRegisters(base string, c Command) []Issue {
	var issues []Issue

	keys := make([]string, 0, len(c.Register))
	for k := range c.Register {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	positions := map[int]string{}
	for _, name := range keys {
		r := c.Register[name]
		path := base + ".register." + name
		if r.Position < 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".position",
				Message:  fmt.Sprintf("position must be >= 1, got %d", r.Position),
			})
		} else if other, ok := positions[r.Position]; ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".position",
				Message:  fmt.Sprintf("position %d is already used by %q", r.Position, other),
			})
		} else {
			positions[r.Position] = name
		}
		if r.Position >= 1 && r.Position <= len(c.Parameters) && c.Parameters[r.Position-1] != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".position",
				Message:  fmt.Sprintf("parameter %q at position %d is replaced by the output register", c.Parameters[r.Position-1], r.Position),
			})
		}
		if strings.TrimSpace(r.Field) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".field",
				Message:  "field must not be empty",
			})
		}
		if r.Type != "" && value.ParseCategory(r.Type) == value.CategoryUnknown {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".type",
				Message:  fmt.Sprintf("unknown type %q; values will be passed through unchanged", r.Type),
			})
		}
	}

	return issues
}

func validateTuning(t Tuning) []Issue {
	var issues []Issue

	if t.FetchSize < -1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.fetch_size",
			Message:  fmt.Sprintf("fetch_size must be >= -1, got %d", t.FetchSize),
		})
	}
	if t.MaxRows < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.max_rows",
			Message:  "max_rows must not be negative",
		})
	}
	if t.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if t.MaxRetryWait < 0 || t.QueryTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning",
			Message:  "max_retry_wait and query_timeout must not be negative",
		})
	}
	if t.MaxLOBLength < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.max_lob_length",
			Message:  "max_lob_length must not be negative",
		})
	}
	if _, err := value.ParseRoundingMode(t.Rounding); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.rounding",
			Message:  err.Error(),
		})
	}
	if _, err := value.ParseLocale(t.Locale); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.locale",
			Message:  err.Error(),
		})
	}
	if _, err := value.ParseLocation(t.Timezone); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.timezone",
			Message:  err.Error(),
		})
	}
	if !ForwardOnly(t.ResultSetType) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.result_set_type",
			Message:  fmt.Sprintf("result_set_type %q is not supported; results are read forward-only", t.ResultSetType),
		})
	}
	if !ReadOnlyConcurrency(t.ResultSetConcurrency) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tuning.result_set_concurrency",
			Message:  fmt.Sprintf("result_set_concurrency %q is not supported; results are read-only", t.ResultSetConcurrency),
		})
	}
	for from, to := range t.ColumnNameMap {
		if strings.TrimSpace(to) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "tuning.column_name_map." + from,
				Message:  "target label must not be empty",
			})
		}
	}

	return issues
}

// ForwardOnly reports whether s names the forward-only result mode. The
// empty string is the default.
func ForwardOnly(s string) bool {
	switch normalizeMode(s) {
	case "", "forwardonly", "typeforwardonly":
		return true
	}
	return false
}

// ReadOnlyConcurrency reports whether s names the read-only concurrency
// mode. The empty string is the default.
func ReadOnlyConcurrency(s string) bool {
	switch normalizeMode(s) {
	case "", "readonly", "concurreadonly":
		return true
	}
	return false
}

func normalizeMode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

func validateSink(s Sink) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.kind",
			Message:  "sink.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"bulk":     {},
		"sqlite":   {},
		"postgres": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.kind",
			Message:  fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	switch s.Kind {
	case "bulk":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sink.path",
				Message:  "bulk sink requires a non-empty path",
			})
		}
	case "sqlite", "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sink.dsn",
				Message:  fmt.Sprintf("%s sink requires a non-empty dsn", s.Kind),
			})
		}
	}
	if s.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if s.MaxDocsPerSecond < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.max_docs_per_second",
			Message:  "max_docs_per_second must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.Options.String("url", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.options.url",
				Message:  "prometheus backend requires a Pushgateway url (or set PUSHGATEWAY_URL)",
			})
		}
	case "datadog":
		if m.Options.String("addr", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.options.addr",
				Message:  "datadog backend requires an agent addr (or set DD_AGENT_ADDR)",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want prometheus, datadog or none", m.Backend),
		})
	}

	return issues
}
