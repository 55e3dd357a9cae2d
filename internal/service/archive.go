package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// ArchiveRunner exports settlement and audit history older than the
// retention window to cold storage.
type ArchiveRunner struct {
	archiver      domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner.
func NewArchiveRunner(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *ArchiveRunner {
	return &ArchiveRunner{
		archiver:      archiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Cutoff returns the time before which rows are archived.
func (a *ArchiveRunner) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run performs one archive pass.
func (a *ArchiveRunner) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	settlements, err := a.archiver.ArchiveSettlements(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("service: archive settlements before %v: %w", cutoff, err)
	}
	audit, err := a.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("service: archive audit before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("settlements_archived", settlements),
		slog.Int64("audit_archived", audit),
	)
	return nil
}

// RunCron runs the archive on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
func (a *ArchiveRunner) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("service: cron %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(a.now().UTC())
		if err != nil {
			return fmt.Errorf("service: cron %q: %w", cronExpr, err)
		}
		wait := next.Sub(a.now())
		a.logger.DebugContext(ctx, "archive waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one cron field. An empty set is a wildcard.
type cronField map[int]bool

func (f cronField) matches(v int) bool { return len(f) == 0 || f[v] }

// parseCronField accepts "*", "*/n", "a-b", single values and comma lists
// of those, bounded to [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{}, nil
	}
	out := cronField{}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q", part)
			}
			step, part = n, base
		}
		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("value %q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	parsed := make([]cronField, 5)
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		parsed[i] = cf
	}
	return cronSchedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// next returns the first minute strictly after t matching the schedule,
// searching at most a year ahead.
func (c cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within a year")
}
