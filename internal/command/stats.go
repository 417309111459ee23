package command

import (
	"time"

	"docpump/internal/assemble"
)

// Stats are the counters a Runner keeps across commands. They back the
// $metrics.* and $last* placeholders.
type Stats struct {
	// Counter is the number of commands started.
	Counter   int64
	Succeeded int64
	Failed    int64
	// TotalRows counts rows read plus rows affected by writes.
	TotalRows  int64
	TotalBytes int64

	LastExecutionStart time.Time
	LastExecutionEnd   time.Time
	// LastRowCount is the row count of the most recent command.
	LastRowCount int64
	LastError    error
	LastErrorAt  time.Time

	Documents assemble.Stats
}

// bind resolves p against the stats, the job name and now.
func (s *Stats) bind(p Param, job string, now time.Time) any {
	switch p.Placeholder {
	case PlaceholderNone:
		return p.Literal
	case PlaceholderNow:
		return now
	case PlaceholderJob:
		return job
	case PlaceholderLastRowCount:
		return s.LastRowCount
	case PlaceholderLastExceptionDate:
		return nullTime(s.LastErrorAt)
	case PlaceholderLastException:
		if s.LastError == nil {
			return nil
		}
		return s.LastError.Error()
	case PlaceholderCounter:
		return s.Counter
	case PlaceholderLastExecutionStart:
		return nullTime(s.LastExecutionStart)
	case PlaceholderLastExecutionEnd:
		return nullTime(s.LastExecutionEnd)
	case PlaceholderTotalRows:
		return s.TotalRows
	case PlaceholderTotalBytes:
		return s.TotalBytes
	case PlaceholderSucceeded:
		return s.Succeeded
	case PlaceholderFailed:
		return s.Failed
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
