// Package command executes configured statements against a source database
// and feeds their results through the document assembler into a sink.
//
// A Runner owns one read and one write connection (via conn.Manager), one
// Normalizer and one assemble.Tracker. It is driven by a single goroutine;
// parallel jobs use one Runner each.
package command

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"docpump/internal/assemble"
	"docpump/internal/config"
	"docpump/internal/document"
	"docpump/internal/value"
)

// Shape is how a command is executed.
type Shape uint8

const (
	// ShapeQuery streams rows from the read connection.
	ShapeQuery Shape = iota
	// ShapeWrite executes an update/insert/delete on the write connection.
	ShapeWrite
	// ShapeCall executes a stored procedure and reads its output registers
	// as one row.
	ShapeCall
)

func (s Shape) String() string {
	switch s {
	case ShapeWrite:
		return "write"
	case ShapeCall:
		return "call"
	}
	return "query"
}

// Command is a compiled, ready-to-run statement.
type Command struct {
	Name      string
	Statement string
	Shape     Shape
	Params    []Param
	// Registers are sorted by position.
	Registers []Register
}

// Register is one output parameter of a callable command.
type Register struct {
	Name     string
	Position int
	Category value.Category
	Field    string
}

// Param is one bound parameter: either a literal string or a placeholder
// resolved from the runner's state at execution time.
type Param struct {
	Literal     string
	Placeholder Placeholder
}

// Placeholder is the closed set of values a "$name" parameter may refer to.
type Placeholder uint8

const (
	PlaceholderNone Placeholder = iota
	PlaceholderNow
	PlaceholderJob
	PlaceholderLastRowCount
	PlaceholderLastExceptionDate
	PlaceholderLastException
	PlaceholderCounter
	PlaceholderLastExecutionStart
	PlaceholderLastExecutionEnd
	PlaceholderTotalRows
	PlaceholderTotalBytes
	PlaceholderSucceeded
	PlaceholderFailed
)

var placeholders = map[string]Placeholder{
	"$now":                         PlaceholderNow,
	"$job":                         PlaceholderJob,
	"$lastrowcount":                PlaceholderLastRowCount,
	"$lastexceptiondate":           PlaceholderLastExceptionDate,
	"$lastexception":               PlaceholderLastException,
	"$metrics.counter":             PlaceholderCounter,
	"$metrics.lastexecutionstart":  PlaceholderLastExecutionStart,
	"$metrics.lastexecutionend":    PlaceholderLastExecutionEnd,
	"$metrics.totalrows":           PlaceholderTotalRows,
	"$metrics.totalbytes":          PlaceholderTotalBytes,
	"$metrics.succeeded":           PlaceholderSucceeded,
	"$metrics.failed":              PlaceholderFailed,
}

// ParseParam resolves one configured parameter. "$$" escapes a literal
// leading dollar; any other "$" prefix must name a known placeholder.
func ParseParam(s string) (Param, error) {
	if strings.HasPrefix(s, "$$") {
		return Param{Literal: s[1:]}, nil
	}
	if !strings.HasPrefix(s, "$") {
		return Param{Literal: s}, nil
	}
	p, ok := placeholders[strings.ToLower(s)]
	if !ok {
		return Param{}, fmt.Errorf("command: unknown placeholder %q", s)
	}
	return Param{Placeholder: p}, nil
}

// Compile turns a configured command into a Command. i is the command's
// position in the job and names it when no name is configured.
func Compile(c config.Command, i int) (Command, error) {
	cmd := Command{
		Name:      c.Name,
		Statement: strings.TrimSpace(c.Statement),
	}
	if cmd.Name == "" {
		cmd.Name = fmt.Sprintf("command[%d]", i)
	}
	if cmd.Statement == "" {
		return Command{}, fmt.Errorf("command %s: empty statement", cmd.Name)
	}
	switch {
	case c.Write && c.Callable:
		return Command{}, fmt.Errorf("command %s: write and callable are exclusive", cmd.Name)
	case c.Write:
		cmd.Shape = ShapeWrite
	case c.Callable && len(c.Register) > 0:
		cmd.Shape = ShapeCall
	case len(c.Register) > 0:
		return Command{}, fmt.Errorf("command %s: register requires callable", cmd.Name)
	}

	for _, s := range c.Parameters {
		p, err := ParseParam(s)
		if err != nil {
			return Command{}, fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		cmd.Params = append(cmd.Params, p)
	}

	seen := map[int]string{}
	for name, r := range c.Register {
		if r.Position < 1 {
			return Command{}, fmt.Errorf("command %s: register %q: position must be >= 1", cmd.Name, name)
		}
		if other, ok := seen[r.Position]; ok {
			return Command{}, fmt.Errorf("command %s: registers %q and %q share position %d", cmd.Name, other, name, r.Position)
		}
		seen[r.Position] = name
		field := r.Field
		if field == "" {
			field = name
		}
		cmd.Registers = append(cmd.Registers, Register{
			Name:     name,
			Position: r.Position,
			Category: value.ParseCategory(r.Type),
			Field:    field,
		})
	}
	sort.Slice(cmd.Registers, func(a, b int) bool {
		return cmd.Registers[a].Position < cmd.Registers[b].Position
	})
	return cmd, nil
}

// CompileAll compiles every command of a job.
func CompileAll(cs []config.Command) ([]Command, error) {
	out := make([]Command, 0, len(cs))
	for i, c := range cs {
		cmd, err := Compile(c, i)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// Options tunes a Runner.
type Options struct {
	// Job is bound to $job and labels metrics.
	Job      string
	Value    value.Options
	Assemble assemble.Options
	// MaxRows stops reading a result after that many rows when positive.
	MaxRows int64
	// QueryTimeout bounds each statement, including reading its rows.
	QueryTimeout time.Duration
	// RetryWait is the pause before retrying a recoverable error.
	RetryWait time.Duration
}

// NewOptions derives runner options from a job's tuning and sink defaults.
func NewOptions(j config.Job) (Options, error) {
	t := j.Tuning
	if !config.ForwardOnly(t.ResultSetType) {
		return Options{}, fmt.Errorf("command: result_set_type %q is not supported", t.ResultSetType)
	}
	if !config.ReadOnlyConcurrency(t.ResultSetConcurrency) {
		return Options{}, fmt.Errorf("command: result_set_concurrency %q is not supported", t.ResultSetConcurrency)
	}

	vo := value.DefaultOptions()
	var err error
	if vo.Locale, err = value.ParseLocale(t.Locale); err != nil {
		return Options{}, err
	}
	if vo.Location, err = value.ParseLocation(t.Timezone); err != nil {
		return Options{}, err
	}
	if vo.Rounding, err = value.ParseRoundingMode(t.Rounding); err != nil {
		return Options{}, err
	}
	vo.Scale = t.ScaleOrDefault()
	vo.BinaryAsText = t.BinaryAsText
	if t.MaxLOBLength > 0 {
		vo.MaxLOBLength = t.MaxLOBLength
	}

	return Options{
		Job:   j.Name,
		Value: vo,
		Assemble: assemble.Options{
			DefaultIndex: j.Sink.DefaultIndex,
			DefaultType:  j.Sink.DefaultType,
			ColumnNames:  t.ColumnNameMap,
			Merge:        document.MergeOptions{ForceArray: t.ForceArray},
		},
		MaxRows:      t.MaxRows,
		QueryTimeout: t.QueryTimeout.Std(),
		RetryWait:    t.MaxRetryWait.Std(),
	}, nil
}
