package proc

import "sync"

// a one-shot exit rendezvous. the exiting process posts its status once;
// any number of waiters observe it.
type Wait_t struct {
	once   sync.Once
	ch     chan struct{}
	status int
}

func (w *Wait_t) Wait_init() {
	w.ch = make(chan struct{})
}

// posts status and wakes every waiter. later calls do nothing.
func (w *Wait_t) putstatus(status int) {
	w.once.Do(func() {
		w.status = status
		close(w.ch)
	})
}

// blocks until the status is posted and returns it.
func (w *Wait_t) Reap() int {
	<-w.ch
	return w.status
}

func (w *Wait_t) Posted() bool {
	select {
	case <-w.ch:
		return true
	default:
		return false
	}
}

// closed once the status is posted
func (w *Wait_t) Ch() <-chan struct{} {
	return w.ch
}
