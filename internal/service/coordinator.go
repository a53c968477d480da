package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/manudelosrios02/datalogger/internal/command"
	"github.com/manudelosrios02/datalogger/internal/console"
	"github.com/manudelosrios02/datalogger/internal/metrics"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/sensor"
	"github.com/manudelosrios02/datalogger/internal/session"
	"github.com/manudelosrios02/datalogger/internal/storage"
)

// Acquirer produces one sample per call.
type Acquirer interface {
	Acquire(elapsed uint64) (record.Sample, error)
}

// State is the mutable state shared by both control surfaces. Only the
// coordinator loop touches it.
type State struct {
	Sessions *session.Manager
	Router   *command.Router
	Console  *console.Console

	Live    string
	LiveAt  time.Time
	failing map[string]bool
}

type Options struct {
	Period      time.Duration
	LiveRefresh time.Duration
	// How often the loop checks the sampling schedule
	Resolution time.Duration
	Metrics    *metrics.Metrics
}

// Coordinator is the single owner of State. Console lines, HTTP requests and
// sampling ticks are all serviced by Run, one at a time.
type Coordinator struct {
	state    State
	store    storage.Store
	sensors  Acquirer
	metrics  *metrics.Metrics
	pacer    *Pacer
	period   time.Duration
	live     time.Duration
	res      time.Duration
	now      func() time.Time
	requests chan request
	stopped  chan struct{}
}

type request struct {
	fn   func()
	done chan struct{}
}

var _ Service = (*Coordinator)(nil)

// New wires a coordinator around store and sensors. Console output goes to
// con, which also mirrors it into the log served at /log.
func New(store storage.Store, sensors Acquirer, con *console.Console, opts Options) *Coordinator {
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	if opts.LiveRefresh < opts.Period {
		opts.LiveRefresh = opts.Period
	}
	if opts.Resolution <= 0 {
		opts.Resolution = min(opts.Period/10, 50*time.Millisecond)
	}

	sessions := session.NewManager(store)
	return &Coordinator{
		state: State{
			Sessions: sessions,
			Router:   command.NewRouter(sessions, store, con),
			Console:  con,
			failing:  make(map[string]bool),
		},
		store:    store,
		sensors:  sensors,
		metrics:  opts.Metrics,
		pacer:    NewPacer(opts.Period),
		period:   opts.Period,
		live:     opts.LiveRefresh,
		res:      opts.Resolution,
		now:      time.Now,
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

// Run services console lines, queued requests and the sampling schedule
// until ctx is done. An active session is stopped on the way out. lines may
// be nil or closed; the loop keeps serving HTTP without a console.
func (c *Coordinator) Run(ctx context.Context, lines <-chan string) error {
	defer close(c.stopped)

	ticker := time.NewTicker(c.res)
	defer ticker.Stop()

	c.state.Router.PrintMenu()
	slog.Info("Coordinator started", "period", c.period, "live_refresh", c.live)

	for {
		select {
		case <-ctx.Done():
			if c.state.Sessions.Active() {
				c.dispatch(func() { c.state.Router.StopSession() })
			}
			slog.Info("Coordinator stopped")
			return nil

		case req := <-c.requests:
			c.dispatch(req.fn)
			close(req.done)

		case line, ok := <-lines:
			if !ok {
				slog.Info("Console input closed")
				lines = nil
				continue
			}
			c.dispatch(func() { c.state.Router.Handle(line) })

		case <-ticker.C:
			c.Poll(c.now())
		}
	}
}

// Poll fires at most one sampling cycle if the schedule is due.
func (c *Coordinator) Poll(now time.Time) {
	if !c.state.Sessions.Active() {
		return
	}
	scheduled, due := c.pacer.Due(now)
	if !due {
		return
	}
	c.tick(scheduled)
}

// tick acquires, persists and echoes one sample.
func (c *Coordinator) tick(scheduled time.Time) {
	elapsed := (c.state.Sessions.Samples() + 1) * uint64(c.period/time.Second)
	sample, err := c.sensors.Acquire(elapsed)
	c.trackFailures(err)

	if err := c.state.Sessions.Append(sample); err != nil {
		c.state.Console.Printf("Write failure at t=%d: %s\n", elapsed, command.Describe(err))
		slog.Error("Sample not written", "elapsed", elapsed, "error", err)
		if c.metrics != nil {
			c.metrics.WriteFailed()
		}
	} else {
		c.state.Console.Println(record.Format(sample))
		if c.metrics != nil {
			c.metrics.SampleWritten()
		}
	}

	if c.state.LiveAt.IsZero() || scheduled.Sub(c.state.LiveAt) >= c.live {
		c.state.Live = record.FormatLive(sample)
		c.state.LiveAt = scheduled
		if c.metrics != nil {
			c.metrics.Observe(sample)
		}
	}
}

// trackFailures reports a device on the console when it starts or stops
// failing, rather than on every tick.
func (c *Coordinator) trackFailures(err error) {
	now := make(map[string]bool)
	for _, re := range sensor.ReadErrors(err) {
		now[re.Device] = true
		if c.metrics != nil {
			c.metrics.ReadFailed(re.Device)
		}
		if !c.state.failing[re.Device] {
			c.state.Console.Printf("Read failure on %s: %v\n", re.Device, re.Err)
		}
	}
	for device := range c.state.failing {
		if !now[device] {
			c.state.Console.Printf("%s recovered\n", device)
		}
	}
	c.state.failing = now
}

// dispatch runs fn and keeps the schedule and gauges in step with any
// session change fn caused.
func (c *Coordinator) dispatch(fn func()) {
	wasActive := c.state.Sessions.Active()
	fn()
	active := c.state.Sessions.Active()
	if active == wasActive {
		return
	}
	if active {
		c.pacer.Reset(c.now())
		c.state.LiveAt = time.Time{}
		c.state.failing = make(map[string]bool)
	}
	if c.metrics != nil {
		c.metrics.SessionActive(active)
	}
}

// submit runs fn on the loop and waits for it. Once the loop has accepted the
// request fn runs to completion.
func (c *Coordinator) submit(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	<-req.done
	return nil
}

func (c *Coordinator) Start(ctx context.Context, label string) error {
	var err error
	if serr := c.submit(ctx, func() {
		err = c.state.Router.StartSession(label)
	}); serr != nil {
		return serr
	}
	return err
}

func (c *Coordinator) Stop(ctx context.Context) error {
	var err error
	if serr := c.submit(ctx, func() {
		err = c.state.Router.StopSession()
	}); serr != nil {
		return serr
	}
	return err
}

func (c *Coordinator) Delete(ctx context.Context, name string) error {
	var err error
	if serr := c.submit(ctx, func() {
		if strings.TrimSpace(name) == "" {
			c.state.Console.Println("Delete ignored: no file name given")
			return
		}
		err = c.state.Router.Delete(name)
	}); serr != nil {
		return serr
	}
	return err
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.submit(ctx, func() {
		status, info := c.state.Sessions.Status()
		snap = Snapshot{
			Mode:    c.state.Router.Mode().String(),
			Status:  status,
			Session: info,
			Live:    c.state.Live,
			LiveAt:  c.state.LiveAt,
			Period:  c.period,
		}
		files, ferr := c.store.List()
		if ferr != nil {
			snap.StorageErr = command.Describe(ferr)
		}
		snap.Files = files
		for device := range c.state.failing {
			snap.Failing = append(snap.Failing, device)
		}
		sort.Strings(snap.Failing)
	})
	return snap, err
}

func (c *Coordinator) ConsoleLog(ctx context.Context) (string, error) {
	var s string
	err := c.submit(ctx, func() { s = c.state.Console.Log().String() })
	return s, err
}

func (c *Coordinator) Live(ctx context.Context) (string, error) {
	var s string
	err := c.submit(ctx, func() { s = c.state.Live })
	return s, err
}

func (c *Coordinator) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	var (
		rc       io.ReadCloser
		resolved string
		err      error
	)
	if serr := c.submit(ctx, func() {
		if resolved, err = c.store.Resolve(name); err != nil {
			return
		}
		rc, err = c.store.Open(resolved)
	}); serr != nil {
		return nil, "", serr
	}
	if err != nil {
		return nil, "", err
	}
	return rc, resolved, nil
}

