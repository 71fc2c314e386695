package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"routeledger/internal/core/id"
)

func TestLock_SortsAndDeduplicates(t *testing.T) {
	s := New()
	a, b := id.New(), id.New()

	held, unlock := s.Lock(b, a, b)
	defer unlock()

	assert.Len(t, held, 2)
	assert.ElementsMatch(t, []id.ID{a, b}, held)
}

func TestLock_OverlappingGroupsDoNotDeadlock(t *testing.T) {
	s := New()
	a, b, c := id.New(), id.New(), id.New()
	counter := map[id.ID]int{}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []id.ID{a, b}
			if i%2 == 0 {
				keys = []id.ID{c, b, a}
			}
			held, unlock := s.Lock(keys...)
			for _, k := range held {
				counter[k]++
			}
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter[a])
	assert.Equal(t, 50, counter[b])
	assert.Equal(t, 25, counter[c])
}
