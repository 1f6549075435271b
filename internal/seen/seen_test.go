package seen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rtagsd/rtagsd/internal/location"
)

func TestClaimIsFirstComeFirstServed(t *testing.T) {
	s := New()
	fileID := location.FileID(1)

	assert.True(t, s.Claim(fileID), "the first claim must succeed")
	assert.False(t, s.Claim(fileID), "a second claim before Unclaim must fail")
	assert.True(t, s.IsClaimed(fileID))
}

func TestUnclaimAllowsReclaiming(t *testing.T) {
	s := New()
	fileID := location.FileID(1)

	require := assert.New(t)
	require.True(s.Claim(fileID))
	s.Unclaim(fileID)
	require.False(s.IsClaimed(fileID))
	require.True(s.Claim(fileID), "Unclaim must let the next job claim it afresh")
}

func TestIsClaimedOnUnseenFileIsFalse(t *testing.T) {
	s := New()
	assert.False(t, s.IsClaimed(location.FileID(99)))
}

func TestClaimIsConcurrencySafe(t *testing.T) {
	s := New()
	fileID := location.FileID(1)

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Claim(fileID)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for r := range results {
		if r {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one of the concurrent claimants must win")
}
