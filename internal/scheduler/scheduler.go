package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"powerwatch-backend/internal/bus"
	"powerwatch-backend/internal/discovery"
	"powerwatch-backend/internal/metrics"
	"powerwatch-backend/internal/monitor"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/rules"
	"powerwatch-backend/internal/security"
)

var (
	ErrNotScheduled = errors.New("device not scheduled")
	ErrQueueFull    = errors.New("poll queue full")
)

// ReportStore persists poll outcomes and the services discovered for
// per-entity checks.
type ReportStore interface {
	SaveReport(ctx context.Context, rep pipeline.Report) error
	ReplaceServices(ctx context.Context, deviceID, check string, services []discovery.Service) error
}

// StateHistory supplies the last persisted state of a service so a restarted
// worker does not re-announce ongoing problems.
type StateHistory interface {
	LastState(ctx context.Context, deviceID, service string) (string, error)
}

type SampleSink interface {
	WriteSamples(ctx context.Context, device, service string, samples []metrics.Sample, at time.Time) error
}

type StatePublisher interface {
	PublishState(evt bus.StateEvent) error
}

type PollRecorder interface {
	RecordPoll(check string, reports []pipeline.Report, took time.Duration)
}

// Options carries the optional collaborators of a Registry. Nil collaborators
// are skipped.
type Options struct {
	Workers    int
	JobTimeout time.Duration
	Limits     security.Limits
	Store      ReportStore
	History    StateHistory
	Sink       SampleSink
	Publisher  StatePublisher
	Recorder   PollRecorder
	Notifier   *monitor.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

type Registry struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	lastPoll map[string]time.Time
	queue    chan JobRun
	runner   *pipeline.Runner
	opts     Options
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Job struct {
	device   pipeline.Device
	checks   []string
	interval time.Duration
	stop     chan struct{}
}

type JobInfo struct {
	DeviceID            string     `json:"deviceId"`
	Checks              []string   `json:"checks"`
	PollIntervalSeconds int        `json:"pollIntervalSeconds"`
	LastPoll            *time.Time `json:"lastPoll,omitempty"`
}

type JobRun struct {
	device pipeline.Device
	checks []string
}

func NewRegistry(runner *pipeline.Runner, opts Options) *Registry {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Limits.MaxConcurrentPolls > 0 && opts.Workers > opts.Limits.MaxConcurrentPolls {
		opts.Workers = opts.Limits.MaxConcurrentPolls
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	reg := &Registry{
		jobs:     map[string]*Job{},
		lastPoll: map[string]time.Time{},
		queue:    make(chan JobRun, 128),
		runner:   runner,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		reg.wg.Add(1)
		go reg.worker()
	}
	return reg
}

// Stop halts every ticker and waits for in-flight polls to finish.
func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, job := range r.jobs {
		close(job.stop)
	}
	r.jobs = map[string]*Job{}
	r.mu.Unlock()
	r.wg.Wait()
}

// Schedule (re)starts periodic polling of a device. The first poll is queued
// immediately.
func (r *Registry) Schedule(dev pipeline.Device, checks []string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.jobs[dev.ID]; ok {
		close(existing.stop)
	}
	job := &Job{device: dev, checks: append([]string(nil), checks...), interval: interval, stop: make(chan struct{})}
	r.jobs[dev.ID] = job
	go r.runTicker(job)
}

func (r *Registry) Unschedule(deviceID string) {
	r.mu.Lock()
	job, ok := r.jobs[deviceID]
	if ok {
		close(job.stop)
		delete(r.jobs, deviceID)
		delete(r.lastPoll, deviceID)
	}
	r.mu.Unlock()
	if ok && r.opts.Notifier != nil {
		r.opts.Notifier.ForgetPrefix(deviceID + "/")
	}
}

func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]JobInfo, 0, len(r.jobs))
	for id, job := range r.jobs {
		info := JobInfo{DeviceID: id, Checks: job.checks, PollIntervalSeconds: int(job.interval / time.Second)}
		if last, ok := r.lastPoll[id]; ok {
			info.LastPoll = &last
		}
		jobs = append(jobs, info)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].DeviceID < jobs[j].DeviceID })
	return jobs
}

func (r *Registry) job(deviceID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[deviceID]
	return job, ok
}

// Enqueue asks for an out-of-schedule poll. An empty check polls every check
// configured for the device.
func (r *Registry) Enqueue(deviceID, check string) error {
	job, ok := r.job(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScheduled, deviceID)
	}
	run := JobRun{device: job.device, checks: job.checks}
	if check != "" {
		run.checks = []string{check}
	}
	select {
	case r.queue <- run:
		return nil
	default:
		return ErrQueueFull
	}
}

// PollNow polls a scheduled device synchronously and returns its reports.
func (r *Registry) PollNow(ctx context.Context, deviceID string) ([]pipeline.Report, error) {
	job, ok := r.job(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotScheduled, deviceID)
	}
	return r.execute(ctx, JobRun{device: job.device, checks: job.checks}), nil
}

func (r *Registry) runTicker(job *Job) {
	if !r.enqueue(job, JobRun{device: job.device, checks: job.checks}) {
		return
	}
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !r.enqueue(job, JobRun{device: job.device, checks: job.checks}) {
				return
			}
		case <-job.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) enqueue(job *Job, run JobRun) bool {
	select {
	case r.queue <- run:
		return true
	case <-job.stop:
		return false
	case <-r.ctx.Done():
		return false
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case run := <-r.queue:
			r.execute(r.ctx, run)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) execute(parent context.Context, run JobRun) []pipeline.Report {
	var all []pipeline.Report
	for _, check := range run.checks {
		all = append(all, r.poll(parent, run.device, check)...)
	}
	r.mu.Lock()
	r.lastPoll[run.device.ID] = r.opts.Now()
	r.mu.Unlock()
	return all
}

func (r *Registry) poll(parent context.Context, dev pipeline.Device, check string) []pipeline.Report {
	ctx, cancel := context.WithTimeout(parent, r.opts.JobTimeout)
	defer cancel()
	logger := r.opts.Logger.With(slog.String("device", dev.ID), slog.String("check", check))

	start := r.opts.Now()
	reports, err := r.runner.Run(ctx, dev, check, start)
	if err != nil {
		logger.Error("poll failed", slog.String("error", err.Error()))
		return nil
	}
	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordPoll(check, reports, r.opts.Now().Sub(start))
	}
	r.rememberServices(ctx, dev.ID, check, reports, logger)
	for _, rep := range reports {
		r.deliver(ctx, rep, logger)
	}
	return reports
}

func (r *Registry) rememberServices(ctx context.Context, deviceID, check string, reports []pipeline.Report, logger *slog.Logger) {
	if r.opts.Store == nil {
		return
	}
	services := make([]discovery.Service, 0, len(reports))
	for _, rep := range reports {
		if rep.Item != "" {
			services = append(services, discovery.Service{Item: rep.Item, Name: rep.Service})
		}
	}
	if len(services) == 0 {
		return
	}
	if err := r.opts.Store.ReplaceServices(ctx, deviceID, check, services); err != nil {
		logger.Error("store services failed", slog.String("error", err.Error()))
	}
}

func (r *Registry) deliver(ctx context.Context, rep pipeline.Report, logger *slog.Logger) {
	key := rep.Device + "/" + rep.Check + "/" + rep.Service
	r.seed(ctx, key, rep)
	if r.opts.Store != nil {
		if err := r.opts.Store.SaveReport(ctx, rep); err != nil {
			logger.Error("save report failed", slog.String("service", rep.Service), slog.String("error", err.Error()))
		}
	}
	if r.opts.Sink != nil && len(rep.Metrics) > 0 {
		if err := r.opts.Sink.WriteSamples(ctx, rep.Device, rep.Service, rep.Metrics, rep.At); err != nil {
			logger.Error("write samples failed", slog.String("service", rep.Service), slog.String("error", err.Error()))
		}
	}
	if r.opts.Notifier == nil {
		return
	}
	notify, prev, seen := r.opts.Notifier.Observe(key, rep.State, rep.At)
	if !notify {
		return
	}
	logger.Info("service state", slog.String("service", rep.Service), slog.String("state", rep.State.String()))
	if r.opts.Publisher == nil {
		return
	}
	evt := bus.StateEvent{
		PollID:  rep.PollID.String(),
		Device:  rep.Device,
		Check:   rep.Check,
		Service: rep.Service,
		State:   rep.State.String(),
		Summary: summary(rep),
		At:      rep.At.UTC().Format(time.RFC3339),
	}
	if seen {
		evt.Previous = prev.String()
	}
	if err := r.opts.Publisher.PublishState(evt); err != nil {
		logger.Error("publish state failed", slog.String("service", rep.Service), slog.String("error", err.Error()))
	}
}

func (r *Registry) seed(ctx context.Context, key string, rep pipeline.Report) {
	if r.opts.History == nil || r.opts.Notifier == nil || r.opts.Notifier.Known(key) {
		return
	}
	last, err := r.opts.History.LastState(ctx, rep.Device, rep.Service)
	if err != nil {
		return
	}
	state, err := rules.ParseSeverity(last)
	if err != nil {
		return
	}
	r.opts.Notifier.Seed(key, state, rep.At)
}

func summary(rep pipeline.Report) string {
	for _, v := range rep.Verdicts {
		if v.Severity == rep.State {
			return v.Message
		}
	}
	if len(rep.Verdicts) > 0 {
		return rep.Verdicts[0].Message
	}
	return ""
}
