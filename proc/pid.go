package proc

import "sync"

// hands out process ids in increasing order starting at 0. ids are never
// reused.
type Pidalloc_t struct {
	sync.Mutex
	next int
}

func (pa *Pidalloc_t) Next() int {
	pa.Lock()
	defer pa.Unlock()
	ret := pa.next
	pa.next++
	return ret
}
