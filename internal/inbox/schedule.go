package inbox

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly".
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cron %q", expr)
	}
	return sched, nil
}

// NextRun returns the next time expr fires after from
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Schedule runs a function on a cron expression
type Schedule struct {
	cron *cron.Cron
}

// NewSchedule registers fn to run on expr. Runs never overlap: a run that
// is due while the previous one is still busy is skipped.
func NewSchedule(expr string, fn func()) (*Schedule, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(fn))
	return &Schedule{cron: c}, nil
}

// Start begins running the schedule in the background
func (s *Schedule) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running job to finish
func (s *Schedule) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the next time the schedule fires, zero before Start
func (s *Schedule) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
