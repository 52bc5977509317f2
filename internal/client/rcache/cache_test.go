package rcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	c := New(opts)
	t.Cleanup(c.Close)
	return c
}

func outcomesKey(chapterID string) Key {
	return NewKey(Resource("betting"), Resource("outcomes"), ID(chapterID))
}

func TestKey_PrefixAndIdentity(t *testing.T) {
	k := outcomesKey("c1")

	assert.True(t, k.HasPrefix(NewKey(Resource("betting"))))
	assert.True(t, k.HasPrefix(NewKey()))
	assert.True(t, k.HasPrefix(k))
	assert.False(t, k.HasPrefix(NewKey(Resource("stories"))))
	assert.False(t, k.HasPrefix(k.Append(ID("x"))))

	// mesmo texto, tipos diferentes
	assert.NotEqual(t, NewKey(ID("betting")).String(), NewKey(Resource("betting")).String())
	// separador dentro do valor não colide
	assert.NotEqual(t, NewKey(ID("a/b")).String(), NewKey(ID("a"), ID("b")).String())
	assert.True(t, outcomesKey("c1").Equal(NewKey(Resource("betting")).Append(Resource("outcomes"), ID("c1"))))
}

func TestFetch_ConcurrentRequestsShareOneCall(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	q := Query[string]{
		Key: outcomesKey("c1"),
		Fetch: func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "pool", nil
		},
	}

	var wg sync.WaitGroup
	results := make([]Result[string], 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := Fetch(context.Background(), c, q)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	require.Eventually(t, func() bool { return c.waiting.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Fetches())
	assert.Equal(t, "pool", results[0].Data)
	assert.Equal(t, "pool", results[1].Data)
}

func TestFetch_CachedUntilPrefixInvalidated(t *testing.T) {
	c := newCache(t, Options{})

	var outcomeCalls, storyCalls atomic.Int32
	outcomes := Query[int]{
		Key: outcomesKey("c1"),
		Fetch: func(context.Context) (int, error) {
			return int(outcomeCalls.Add(1)), nil
		},
	}
	story := Query[int]{
		Key: NewKey(Resource("stories"), ID("s1")),
		Fetch: func(context.Context) (int, error) {
			return int(storyCalls.Add(1)), nil
		},
	}

	ctx := context.Background()
	r, err := Fetch(ctx, c, outcomes)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Data)
	assert.False(t, r.FromCache)

	r, err = Fetch(ctx, c, outcomes)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Data)
	assert.True(t, r.FromCache)

	_, err = Fetch(ctx, c, story)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Invalidate(NewKey(Resource("betting"))))

	_, stale, ok := Peek[int](c, outcomes.Key)
	assert.True(t, ok)
	assert.True(t, stale)

	r, err = Fetch(ctx, c, outcomes)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Data)
	assert.False(t, r.FromCache)

	r, err = Fetch(ctx, c, story)
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	assert.Equal(t, int32(1), storyCalls.Load())
}

func TestFetch_DisabledQueryIsSkipped(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	q := Query[string]{
		Key:     outcomesKey(""),
		Enabled: func() bool { return false },
		Fetch: func(context.Context) (string, error) {
			calls.Add(1)
			return "x", nil
		},
	}

	r, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.True(t, r.Skipped)
	assert.Zero(t, calls.Load())

	_, _, ok := Peek[string](c, q.Key)
	assert.False(t, ok)
}

func TestFetch_InvalidationDuringFlightForcesRefetch(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	q := Query[int]{
		Key: outcomesKey("c1"),
		Fetch: func(context.Context) (int, error) {
			n := calls.Add(1)
			if n == 1 {
				<-release
			}
			return int(n), nil
		},
	}

	done := make(chan Result[int])
	go func() {
		r, err := Fetch(context.Background(), c, q)
		assert.NoError(t, err)
		done <- r
	}()

	require.Eventually(t, func() bool { return c.waiting.Load() == 1 }, time.Second, time.Millisecond)
	c.Invalidate(NewKey(Resource("betting")))
	close(release)

	first := <-done
	assert.Equal(t, 1, first.Data)

	r, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_RemoveDuringFlightIsNotRepopulated(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	release := make(chan struct{})
	q := Query[string]{
		Key: NewKey(Resource("user"), Resource("bets"), ID("0xabc")),
		Fetch: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				<-release
				return "before-logout", nil
			}
			return "after-logout", nil
		},
	}

	done := make(chan Result[string])
	go func() {
		r, err := Fetch(context.Background(), c, q)
		assert.NoError(t, err)
		done <- r
	}()

	require.Eventually(t, func() bool { return c.waiting.Load() == 1 }, time.Second, time.Millisecond)
	c.Remove(NewKey(Resource("user")))

	// não se junta à busca anterior ao Remove
	r, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, "after-logout", r.Data)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	assert.Equal(t, "before-logout", (<-done).Data)

	r, err = Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, "after-logout", r.Data)
	assert.True(t, r.FromCache)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClose_NoBackgroundWorkAfterwards(t *testing.T) {
	c := New(Options{RefreshInterval: 5 * time.Millisecond})
	c.Close()

	var calls atomic.Int32
	q := Query[int]{
		Key:   outcomesKey("c1"),
		Live:  true,
		Fetch: func(context.Context) (int, error) { return int(calls.Add(1)), nil },
	}
	obs := Watch(c, q, func(Result[int], error) {})
	c.Invalidate(NewKey(Resource("betting")))
	obs.Close()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, calls.Load())
	c.Close()
}

func TestFetch_CallerCancelDoesNotCancelSharedFetch(t *testing.T) {
	c := newCache(t, Options{})

	release := make(chan struct{})
	fetchErr := make(chan error, 1)
	q := Query[string]{
		Key: outcomesKey("c1"),
		Fetch: func(ctx context.Context) (string, error) {
			<-release
			fetchErr <- ctx.Err()
			return "ok", nil
		},
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Fetch(ctxA, c, q)
		errA <- err
	}()

	resB := make(chan Result[string], 1)
	go func() {
		r, err := Fetch(context.Background(), c, q)
		assert.NoError(t, err)
		resB <- r
	}()

	require.Eventually(t, func() bool { return c.waiting.Load() == 2 }, time.Second, time.Millisecond)
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	assert.Equal(t, "ok", (<-resB).Data)
	assert.NoError(t, <-fetchErr)

	v, stale, ok := Peek[string](c, q.Key)
	assert.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, "ok", v)
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	q := Query[string]{
		Key: NewKey(Resource("leaderboard")),
		Fetch: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("boom")
			}
			return "board", nil
		},
	}

	_, err := Fetch(context.Background(), c, q)
	assert.EqualError(t, err, "boom")

	r, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, "board", r.Data)
}

func TestFetch_TypeMismatch(t *testing.T) {
	c := newCache(t, Options{})
	key := NewKey(Resource("nfts"))

	_, err := Fetch(context.Background(), c, Query[int]{Key: key, Fetch: func(context.Context) (int, error) { return 1, nil }})
	require.NoError(t, err)

	_, err = Fetch(context.Background(), c, Query[string]{Key: key, Fetch: func(context.Context) (string, error) { return "", nil }})
	assert.Error(t, err)
}

func TestFetch_LiveEntriesExpireAfterRefreshInterval(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := newCache(t, Options{RefreshInterval: 30 * time.Second, Now: clk.Now})

	var liveCalls, staticCalls atomic.Int32
	live := Query[int]{Key: NewKey(Resource("betting"), Resource("pools"), Resource("active")), Live: true,
		Fetch: func(context.Context) (int, error) { return int(liveCalls.Add(1)), nil }}
	static := Query[int]{Key: NewKey(Resource("stories")),
		Fetch: func(context.Context) (int, error) { return int(staticCalls.Add(1)), nil }}

	ctx := context.Background()
	_, _ = Fetch(ctx, c, live)
	_, _ = Fetch(ctx, c, static)

	clk.Advance(29 * time.Second)
	_, _ = Fetch(ctx, c, live)
	assert.Equal(t, int32(1), liveCalls.Load())

	clk.Advance(2 * time.Second)
	_, _ = Fetch(ctx, c, live)
	_, _ = Fetch(ctx, c, static)
	assert.Equal(t, int32(2), liveCalls.Load())
	assert.Equal(t, int32(1), staticCalls.Load())
}

func TestWatch_LiveKeyRefreshesWhileObserved(t *testing.T) {
	c := newCache(t, Options{RefreshInterval: 20 * time.Millisecond})

	var calls atomic.Int32
	q := Query[int]{
		Key:  outcomesKey("c1"),
		Live: true,
		Fetch: func(context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
	}

	var got atomic.Int32
	obs := Watch(c, q, func(r Result[int], err error) {
		if assert.NoError(t, err) {
			got.Store(int32(r.Data))
		}
	})

	require.Eventually(t, func() bool { return got.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Observers(q.Key))

	obs.Close()
	obs.Close()
	assert.Equal(t, 0, c.Observers(q.Key))

	time.Sleep(30 * time.Millisecond) // uma busca em voo pode terminar
	settled := calls.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}

func TestWatch_InvalidationRefetchesObservedKey(t *testing.T) {
	c := newCache(t, Options{})

	var calls atomic.Int32
	q := Query[int]{
		Key: NewKey(Resource("user"), Resource("bets"), ID("0xabc")),
		Fetch: func(context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
	}

	values := make(chan int, 4)
	obs := Watch(c, q, func(r Result[int], err error) {
		assert.NoError(t, err)
		values <- r.Data
	})
	defer obs.Close()

	assert.Equal(t, 1, <-values)
	c.Invalidate(NewKey(Resource("user")))
	assert.Equal(t, 2, <-values)
}

func TestWatch_DisabledQueryReportsSkipped(t *testing.T) {
	c := newCache(t, Options{})

	var skipped bool
	obs := Watch(c, Query[int]{
		Key:     NewKey(Resource("user"), Resource("stats")),
		Enabled: func() bool { return false },
		Fetch:   func(context.Context) (int, error) { t.Fatal("fetch on disabled query"); return 0, nil },
	}, func(r Result[int], err error) {
		skipped = r.Skipped
	})
	obs.Close()

	assert.True(t, skipped)
	assert.Zero(t, c.Fetches())
}
