package hashtable

import "fmt"
import "sync"
import "sync/atomic"

// a table keyed by int with per-bucket writer locks. readers take no lock.
type elem_t[V any] struct {
	key     int
	value   V
	keyHash uint32
	next    atomic.Pointer[elem_t[V]]
}

type bucket_t[V any] struct {
	sync.Mutex
	first atomic.Pointer[elem_t[V]]
}

type Hashtable_t[V any] struct {
	table []*bucket_t[V]
	n     atomic.Int64
}

func MkHash[V any](size int) *Hashtable_t[V] {
	if size <= 0 {
		panic("bad size")
	}
	ht := &Hashtable_t[V]{}
	ht.table = make([]*bucket_t[V], size)
	for i := range ht.table {
		ht.table[i] = &bucket_t[V]{}
	}
	return ht
}

func (ht *Hashtable_t[V]) String() string {
	s := ""
	for i, b := range ht.table {
		if e := b.first.Load(); e != nil {
			s += fmt.Sprintf("b %d:\n", i)
			for ; e != nil; e = e.next.Load() {
				s += fmt.Sprintf("(%v, %v), ", e.keyHash, e.key)
			}
			s += "\n"
		}
	}
	return s
}

func (ht *Hashtable_t[V]) Size() int {
	return int(ht.n.Load())
}

func (ht *Hashtable_t[V]) Get(key int) (V, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		if e.keyHash == kh && e.key == key {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// inserts key if it is absent. returns the value now stored and whether it
// was inserted.
func (ht *Hashtable_t[V]) Set(key int, value V) (V, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	add := func(last *elem_t[V]) {
		n := &elem_t[V]{key: key, value: value, keyHash: kh}
		if last == nil {
			n.next.Store(b.first.Load())
			b.first.Store(n)
		} else {
			n.next.Store(last.next.Load())
			last.next.Store(n)
		}
		ht.n.Add(1)
	}

	var last *elem_t[V]
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		if e.keyHash == kh && e.key == key {
			return e.value, false
		}
		if kh < e.keyHash {
			add(last)
			return value, true
		}
		last = e
	}
	add(last)
	return value, true
}

// removes key; panics if it is absent.
func (ht *Hashtable_t[V]) Del(key int) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	var last *elem_t[V]
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		if e.keyHash == kh && e.key == key {
			if last == nil {
				b.first.Store(e.next.Load())
			} else {
				last.next.Store(e.next.Load())
			}
			ht.n.Add(-1)
			return
		}
		if kh < e.keyHash {
			break
		}
		last = e
	}
	panic("del of non-existing key")
}

// calls f on every element until f returns true. returns true if f did.
func (ht *Hashtable_t[V]) Iter(f func(int, V) bool) bool {
	for _, b := range ht.table {
		for e := b.first.Load(); e != nil; e = e.next.Load() {
			if f(e.key, e.value) {
				return true
			}
		}
	}
	return false
}

func (ht *Hashtable_t[V]) hash(keyHash uint32) int {
	return int(keyHash % uint32(len(ht.table)))
}

func khash(key int) uint32 {
	return uint32(2654435761) * uint32(key)
}
