package mem

import "sync"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestPgsNewAllOrNothing(t *testing.T) {
	phys := Phys_init(12)
	assert.Equal(t, 12, phys.Pgcount())

	pgs, ok := phys.Pgs_new(5)
	require.True(t, ok)
	assert.Len(t, pgs, 5)
	assert.Equal(t, 7, phys.Pgcount())

	// too many: nothing is taken
	none, ok := phys.Pgs_new(8)
	assert.False(t, ok)
	assert.Nil(t, none)
	assert.Equal(t, 7, phys.Pgcount())

	rest, ok := phys.Pgs_new(7)
	require.True(t, ok)
	assert.Equal(t, 0, phys.Pgcount())

	seen := map[Ppn_t]bool{}
	for _, p := range append(pgs, rest...) {
		assert.False(t, seen[p], "frame %d granted twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, 12)

	phys.Pgs_free(pgs)
	phys.Pgs_free(rest)
	assert.Equal(t, 12, phys.Pgcount())
}

func TestPgFreeInvalid(t *testing.T) {
	phys := Phys_init(4)
	assert.Panics(t, func() { phys.Pg_free(4) })
	assert.Panics(t, func() { phys.Pg_free(-1) })
	// page 0 is already free
	assert.Panics(t, func() { phys.Pg_free(0) })
}

func TestPgsNewZeroes(t *testing.T) {
	phys := Phys_init(2)
	pgs, ok := phys.Pgs_new(1)
	require.True(t, ok)
	pg := phys.Dmap(pgs[0])
	assert.Len(t, pg, PGSIZE)
	pg[10] = 0xaa
	phys.Pgs_free(pgs)
	pgs, ok = phys.Pgs_new(2)
	require.True(t, ok)
	for _, p := range pgs {
		for _, b := range phys.Dmap(p) {
			assert.Equal(t, uint8(0), b)
		}
	}
}

// concurrent allocators never share a frame and the pool is whole after
// every allocation is freed
func TestPgsConcurrent(t *testing.T) {
	const npages = 64
	phys := Phys_init(npages)
	var mu sync.Mutex
	owner := map[Ppn_t]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				pgs, ok := phys.Pgs_new(1 + i%5)
				if !ok {
					continue
				}
				mu.Lock()
				for _, p := range pgs {
					if o, ok := owner[p]; ok {
						t.Errorf("frame %d owned by %d and %d", p, o, id)
					}
					owner[p] = id
				}
				mu.Unlock()
				mu.Lock()
				for _, p := range pgs {
					delete(owner, p)
				}
				mu.Unlock()
				phys.Pgs_free(pgs)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, npages, phys.Pgcount())
}
