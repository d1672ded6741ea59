package gpu

import "github.com/alitto/pond/v2"

// Fence tracks completion of one submission.
type Fence struct {
	label string
	task  pond.Task
	err   error
	done  bool
}

func signaledFence(err error) *Fence {
	return &Fence{done: true, err: err}
}

// Signaled polls the fence without blocking.
func (f *Fence) Signaled() bool {
	if f.done {
		return true
	}
	select {
	case <-f.task.Done():
		f.err = f.task.Wait()
		f.done = true
		return true
	default:
		return false
	}
}

// Wait blocks until the submission finished and returns its error.
func (f *Fence) Wait() error {
	if !f.done {
		f.err = f.task.Wait()
		f.done = true
	}
	return f.err
}

// Err returns the submission error, or ErrNotSignaled while it is still running.
func (f *Fence) Err() error {
	if !f.Signaled() {
		return ErrNotSignaled
	}
	return f.err
}

// Label returns the label of the command buffer the fence belongs to.
func (f *Fence) Label() string {
	return f.label
}
