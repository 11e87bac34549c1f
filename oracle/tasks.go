package oracle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Tasks runs the players of a scenario concurrently. The first task to fail
// cancels the context handed to the others.
type Tasks struct {
	ctx   context.Context
	group *errgroup.Group
	tasks []*Task
}

// Task is the handle of one goroutine started by Tasks.Go.
type Task struct {
	name string
	done chan struct{}
	err  error
}

func NewTasks(ctx context.Context) *Tasks {
	group, ctx := errgroup.WithContext(ctx)

	return &Tasks{
		ctx:   ctx,
		group: group,
	}
}

func (t *Tasks) Go(name string, fn func(ctx context.Context) error) *Task {
	task := &Task{
		name: name,
		done: make(chan struct{}),
	}

	t.tasks = append(t.tasks, task)

	t.group.Go(func() error {
		defer close(task.done)

		if err := fn(t.ctx); err != nil {
			task.err = fmt.Errorf("%s: %w", name, err)
		}

		return task.err
	})

	return task
}

// Wait joins every task and returns the first error.
func (t *Tasks) Wait() error {
	return t.group.Wait()
}

func (t *Tasks) Tasks() []*Task {
	return t.tasks
}

func (t *Task) Name() string {
	return t.name
}

// Wait blocks until the task has returned.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done is closed once the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
