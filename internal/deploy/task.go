package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Errors returned by the task runner.
var (
	ErrDuplicateTask = errors.New("duplicate task id")
	ErrNoTasks       = errors.New("no tasks match")
)

// Task is one deploy step. A task whose ID is recorded as completed for the
// network is not run again unless the run is reset.
type Task struct {
	ID       string
	Tags     []string
	Requires []string // config values (env var names) that must be set
	Run      func(ctx context.Context, env *Environment) error
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag string) bool {
	for _, x := range t.Tags {
		if x == tag {
			return true
		}
	}
	return false
}

// Registry holds tasks in registration order.
type Registry struct {
	tasks []*Task
	ids   map[string]bool
}

// NewRegistry returns a registry holding tasks; it panics on a duplicate id.
func NewRegistry(tasks ...*Task) *Registry {
	r := &Registry{ids: make(map[string]bool)}
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a task. Ids must be unique and non-empty.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s has no Run function", t.ID)
	}
	if r.ids == nil {
		r.ids = make(map[string]bool)
	}
	if r.ids[t.ID] {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	r.ids[t.ID] = true
	r.tasks = append(r.tasks, t)
	return nil
}

// Tasks returns all tasks in registration order.
func (r *Registry) Tasks() []*Task {
	return append([]*Task(nil), r.tasks...)
}

// Select returns the tasks carrying any of tags, or every task when tags is empty.
func (r *Registry) Select(tags []string) []*Task {
	if len(tags) == 0 {
		return r.Tasks()
	}
	var out []*Task
	for _, t := range r.tasks {
		for _, tag := range tags {
			if t.HasTag(tag) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Tags returns every tag in use, sorted.
func (r *Registry) Tags() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.tasks {
		for _, tag := range t.Tags {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Status is the outcome of one task.
type Status int

const (
	StatusExecuted Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusExecuted:
		return "executed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of one task in a run.
type Result struct {
	TaskID   string
	Status   Status
	Err      error
	Duration time.Duration
}

// RunOptions selects and controls a run.
type RunOptions struct {
	Tags  []string
	Reset bool // run tasks even if already recorded as completed
}

// Runner executes registry tasks against an environment.
type Runner struct {
	Registry *Registry
	Now      func() time.Time
}

// Run executes the selected tasks in registration order and stops at the
// first failure. Every task's Requires are checked before anything runs. The
// returned results cover every task attempted or skipped; the error is the
// failing task's error.
func (r *Runner) Run(ctx context.Context, env *Environment, opts RunOptions) ([]Result, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	tasks := r.Registry.Select(opts.Tags)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: tags %v", ErrNoTasks, opts.Tags)
	}

	var missing []error
	for _, t := range tasks {
		if err := env.Config.Require(env.Network.Name, t.Requires...); err != nil {
			missing = append(missing, fmt.Errorf("task %s: %w", t.ID, err))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	done, err := env.Records.Migrations()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := done[t.ID]; ok && !opts.Reset {
			env.Log.Info().Str("task", t.ID).Msg("already executed, skipping")
			results = append(results, Result{TaskID: t.ID, Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		env.Log.Debug().Str("task", t.ID).Strs("tags", t.Tags).Msg("running task")
		start := now()
		err := t.Run(ctx, env)
		res := Result{TaskID: t.ID, Duration: now().Sub(start)}
		if err != nil {
			res.Status, res.Err = StatusFailed, err
			results = append(results, res)
			env.Log.Error().Err(err).Str("task", t.ID).Msg("task failed")
			return results, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if err := env.Records.MarkMigrated(t.ID, now()); err != nil {
			res.Status, res.Err = StatusFailed, err
			results = append(results, res)
			return results, fmt.Errorf("task %s: recording completion: %w", t.ID, err)
		}
		res.Status = StatusExecuted
		results = append(results, res)
		env.Log.Debug().Str("task", t.ID).Dur("took", res.Duration).Msg("task done")
	}
	return results, nil
}
