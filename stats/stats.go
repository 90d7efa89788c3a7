package stats

import "reflect"
import "strconv"
import "strings"
import "sync/atomic"

type Counter_t int64

func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

func (c *Counter_t) Add(n int) {
	atomic.AddInt64((*int64)(c), int64(n))
}

func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// kernel-wide event counts
type Kstats_t struct {
	Nsyscall  Counter_t
	Nfault    Counter_t
	Nspawn    Counter_t
	Nspawnerr Counter_t
	Nexit     Counter_t
	Nkill     Counter_t
	Ndeferdel Counter_t
}

// renders every Counter_t field of the struct pointed to by st as
// "\n\tname: value"
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if !strings.HasSuffix(t, "Counter_t") {
			continue
		}
		n := v.Field(i).Int()
		name := v.Type().Field(i).Name
		s += "\n\t" + name + ": " + strconv.FormatInt(n, 10)
	}
	return s + "\n"
}
