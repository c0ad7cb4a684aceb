package backends

import "context"

// ProbeJob periodically refreshes backend availability so fallback plans are
// built from reasonably fresh data. Registered with the cron scheduler.
type ProbeJob struct {
	registry *Registry
}

// NewProbeJob creates a scheduled availability re-probe job
func NewProbeJob(registry *Registry) *ProbeJob {
	return &ProbeJob{registry: registry}
}

// Name implements scheduler.Job
func (j *ProbeJob) Name() string {
	return "backend_probe"
}

// Run implements scheduler.Job
func (j *ProbeJob) Run() error {
	j.registry.ProbeAll(context.Background())
	return nil
}
