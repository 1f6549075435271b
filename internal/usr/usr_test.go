package usr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertIsIdempotent(t *testing.T) {
	in := New()
	a := in.Insert("c:@F@foo#")
	b := in.Insert("c:@F@foo#")
	assert.Equal(t, a, b)
	assert.Equal(t, "c:@F@foo#", in.String(a))
}

func TestInsertDistinctStringsGetDistinctIDs(t *testing.T) {
	in := New()
	a := in.Insert("c:@F@foo#")
	b := in.Insert("c:@F@bar#")
	assert.NotEqual(t, a, b)
}

func TestLookupMiss(t *testing.T) {
	in := New()
	_, ok := in.Lookup("c:@F@nope#")
	assert.False(t, ok)
}

func TestConcurrentInsertSameUSR(t *testing.T) {
	in := New()
	var wg sync.WaitGroup
	ids := make([]ID, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = in.Insert("c:@F@shared#")
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, in.Len())
}
