package fs

import "log/slog"
import "sync"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/stats"

// identifies a file across processes: the store holding it plus its name in
// that store
type Fkey_t struct {
	Store string
	Path  string
}

type ocent_t struct {
	cnt       int
	unlinking bool
}

// Opencount_t counts the live open handles of every file and defers the
// removal of unlinked files until their last handle is closed. lock order:
// Opencount_t before the store.
type Opencount_t struct {
	sync.Mutex
	ents map[Fkey_t]*ocent_t
	// physically removes a file from its store
	remove func(Fkey_t) bool
	// number of deferred removals carried out
	Ndeferred *stats.Counter_t
}

func MkOpencount(remove func(Fkey_t) bool) *Opencount_t {
	return &Opencount_t{
		ents:      make(map[Fkey_t]*ocent_t),
		remove:    remove,
		Ndeferred: new(stats.Counter_t),
	}
}

// takes a reference on k. fails if k is waiting to be removed.
func (oc *Opencount_t) Openref(k Fkey_t) bool {
	oc.Lock()
	defer oc.Unlock()
	e, ok := oc.ents[k]
	if !ok {
		oc.ents[k] = &ocent_t{cnt: 1}
		return true
	}
	if e.unlinking {
		slog.Debug("file has been unlinked", "store", k.Store, "name", k.Path)
		return false
	}
	e.cnt++
	return true
}

// drops a reference on k. the entry disappears when the count reaches zero,
// and the file is removed if it was unlinked while open. returns true if the
// file was removed.
func (oc *Opencount_t) Closeref(k Fkey_t) bool {
	oc.Lock()
	defer oc.Unlock()
	e, ok := oc.ents[k]
	if !ok || e.cnt <= 0 {
		panic("close of unreferenced file")
	}
	e.cnt--
	if e.cnt != 0 {
		return false
	}
	delete(oc.ents, k)
	if !e.unlinking {
		return false
	}
	slog.Debug("removing unlinked file", "store", k.Store, "name", k.Path)
	oc.Ndeferred.Inc()
	if oc.remove != nil && !oc.remove(k) {
		slog.Warn("deferred removal failed", "store", k.Store, "name", k.Path)
	}
	return true
}

// removes k now if nothing holds it open, otherwise marks it for removal at
// the last Closeref. unlinking a file already marked does nothing.
func (oc *Opencount_t) Unlink(k Fkey_t) defs.Err_t {
	oc.Lock()
	defer oc.Unlock()
	e, ok := oc.ents[k]
	if !ok {
		if oc.remove != nil && !oc.remove(k) {
			return -defs.ENOENT
		}
		return 0
	}
	e.unlinking = true
	return 0
}

// the number of open references to k
func (oc *Opencount_t) Count(k Fkey_t) int {
	oc.Lock()
	defer oc.Unlock()
	if e, ok := oc.ents[k]; ok {
		return e.cnt
	}
	return 0
}

func (oc *Opencount_t) Pending(k Fkey_t) bool {
	oc.Lock()
	defer oc.Unlock()
	e, ok := oc.ents[k]
	return ok && e.unlinking
}

// the number of files with live references
func (oc *Opencount_t) Len() int {
	oc.Lock()
	defer oc.Unlock()
	return len(oc.ents)
}
