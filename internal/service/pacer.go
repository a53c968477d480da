package service

import "time"

// Pacer schedules fixed-period work. Each fire advances the schedule by
// exactly one period from the previous scheduled time, never from the time
// of the check, and a single check fires at most once.
type Pacer struct {
	period time.Duration
	next   time.Time
}

func NewPacer(period time.Duration) *Pacer {
	return &Pacer{period: period}
}

// Reset schedules the first fire one period after now.
func (p *Pacer) Reset(now time.Time) {
	p.next = now.Add(p.period)
}

// Due reports whether the scheduled time has been reached and, if so,
// returns that scheduled time and advances the schedule by one period.
func (p *Pacer) Due(now time.Time) (time.Time, bool) {
	if p.next.IsZero() || now.Before(p.next) {
		return time.Time{}, false
	}
	scheduled := p.next
	p.next = p.next.Add(p.period)
	return scheduled, true
}

// Next returns the upcoming scheduled time.
func (p *Pacer) Next() time.Time {
	return p.next
}

func (p *Pacer) Period() time.Duration {
	return p.period
}
