package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// gatedFetch resolves a request for params p only once gates[p] is closed.
func gatedFetch(keys ...string) (FetchFunc[string, string], map[string]chan struct{}) {
	gates := make(map[string]chan struct{}, len(keys))
	for _, k := range keys {
		gates[k] = make(chan struct{})
	}
	fn := func(ctx context.Context, _ FilterSelection, p string) (string, error) {
		select {
		case <-gates[p]:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if p == "fail" {
			return "", errors.New("backend unavailable")
		}
		return "value-" + p, nil
	}
	return fn, gates
}

func TestFetcherDiscardsStaleResponses(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a", "b")
	f := NewFetcher("sales", "", fn, nil)
	ctx := context.Background()

	doneA, started := f.Trigger(ctx, FilterSelection{}, "a")
	require.True(t, started)
	doneB, started := f.Trigger(ctx, FilterSelection{}, "b")
	require.True(t, started)
	assert.Equal(t, FetchPending, f.Result().State)

	close(gates["b"])
	<-doneB
	close(gates["a"])
	<-doneA

	result := f.Result()
	assert.Equal(t, FetchReady, result.State)
	assert.Equal(t, "value-b", result.Value)
	assert.Equal(t, uint64(2), result.Generation)
	assert.Equal(t, 2, f.Calls())
}

func TestFetcherSkipsIdenticalInputs(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a")
	close(gates["a"])
	f := NewFetcher("sales", "", fn, nil)
	ctx := context.Background()

	done, started := f.Trigger(ctx, NewFilterSelection(nil, []string{"CA", "NY"}, nil), "a")
	require.True(t, started)
	<-done

	done, started = f.Trigger(ctx, NewFilterSelection(nil, []string{"NY", "CA"}, nil), "a")
	assert.False(t, started)
	<-done
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, "value-a", f.Result().Value)
}

func TestFetcherFailureCarriesZeroValue(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a", "fail")
	close(gates["a"])
	close(gates["fail"])
	f := NewFetcher("sales", "", fn, nil)
	ctx := context.Background()

	done, _ := f.Trigger(ctx, FilterSelection{}, "a")
	<-done
	require.Equal(t, "value-a", f.Result().Value)

	done, _ = f.Trigger(ctx, FilterSelection{}, "fail")
	<-done
	result := f.Result()
	assert.Equal(t, FetchFailed, result.State)
	assert.Equal(t, "", result.Value)
	assert.EqualError(t, result.Err, "backend unavailable")
	assert.Equal(t, "backend unavailable", f.Snapshot().Error)
}

func TestFetcherNotifiesTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a")
	f := NewFetcher("sales", "", fn, nil)

	var mu sync.Mutex
	var states []FetchState
	cancel := f.Subscribe(func(r FetchResult[string]) {
		mu.Lock()
		states = append(states, r.State)
		mu.Unlock()
	})
	defer cancel()

	done, _ := f.Trigger(context.Background(), FilterSelection{}, "a")
	close(gates["a"])
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []FetchState{FetchPending, FetchReady}, states)
}

func TestFetcherCloseDropsLateResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a")
	f := NewFetcher("sales", "", fn, nil)

	var notified atomic.Int32
	f.Subscribe(func(FetchResult[string]) { notified.Add(1) })

	done, _ := f.Trigger(context.Background(), FilterSelection{}, "a")
	require.Equal(t, int32(1), notified.Load())
	f.Close()
	close(gates["a"])
	<-done

	assert.Equal(t, FetchPending, f.Result().State)
	assert.Equal(t, int32(1), notified.Load())

	_, started := f.Trigger(context.Background(), FilterSelection{}, "b")
	assert.False(t, started)
}

func TestFetcherWaitBlocksUntilSettled(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a")
	f := NewFetcher("sales", "", fn, nil)
	require.NoError(t, f.Wait(context.Background()))

	f.Trigger(context.Background(), FilterSelection{}, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	close(gates["a"])
	require.NoError(t, f.Wait(context.Background()))
	assert.Equal(t, FetchReady, f.Result().State)
}

func TestFetcherApplyParamsReplacesAndNormalizes(t *testing.T) {
	defer goleak.VerifyNone(t)

	var seen []ForecastParams
	var mu sync.Mutex
	f := NewFetcher(FetcherForecast, ForecastParams{}, func(_ context.Context, _ FilterSelection, p ForecastParams) (ForecastReport, error) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
		return ForecastReport{Horizon: p.Horizon, Model: p.Model}, nil
	}, nil).WithNormalizer(normalizeForecastParams)

	assert.Equal(t, ForecastParams{Horizon: DefaultForecastHorizon, Model: ForecastModelLinear}, f.Params())

	done, started, err := f.ApplyParams(context.Background(), []byte(`{"h":6}`))
	require.NoError(t, err)
	require.True(t, started)
	<-done
	assert.Equal(t, 6, f.Params().Horizon)
	assert.Equal(t, ForecastModelLinear, f.Params().Model)

	done, started, err = f.ApplyParams(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, started)
	<-done
	assert.Equal(t, DefaultForecastHorizon, f.Params().Horizon)

	_, _, err = f.ApplyParams(context.Background(), []byte(`{"h":`))
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}

func TestFetchKeyComparesSelectionsAsSets(t *testing.T) {
	a := NewFilterSelection([]string{"Set", "Kurta"}, []string{"CA"}, nil)
	b := NewFilterSelection([]string{"Kurta", "Set"}, []string{"CA"}, nil)
	assert.Equal(t, FetchKey(a, RegionParams{Level: LevelState}), FetchKey(b, RegionParams{Level: LevelState}))
	assert.NotEqual(t, FetchKey(a, RegionParams{Level: LevelState}), FetchKey(a, RegionParams{Level: LevelCity}))
}

func TestFetcherDeliversResultsInGenerationOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	fn, gates := gatedFetch("a", "b")
	f := NewFetcher("sales", "", fn, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []FetchResult[string]
	f.Subscribe(func(r FetchResult[string]) {
		if r.State == FetchReady && r.Generation == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})

	ctx := context.Background()
	doneA, _ := f.Trigger(ctx, FilterSelection{}, "a")
	close(gates["a"])
	<-entered

	triggered := make(chan (<-chan struct{}), 1)
	go func() {
		doneB, _ := f.Trigger(ctx, FilterSelection{}, "b")
		triggered <- doneB
	}()
	close(release)
	doneB := <-triggered
	<-doneA

	mu.Lock()
	last := seen[len(seen)-1]
	mu.Unlock()
	assert.Equal(t, FetchPending, last.State)
	assert.Equal(t, uint64(2), last.Generation)

	close(gates["b"])
	<-doneB

	mu.Lock()
	defer mu.Unlock()
	var order []string
	for _, r := range seen {
		order = append(order, fmt.Sprintf("%s/%d", r.State, r.Generation))
	}
	assert.Equal(t, []string{"pending/1", "ready/1", "pending/2", "ready/2"}, order)
	assert.Equal(t, "value-b", seen[len(seen)-1].Value)
}

func TestFetcherConcurrentUpdateAndSetParamsKeepBothEdits(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := NewFetcher("sales", "p0", func(_ context.Context, _ FilterSelection, p string) (string, error) {
		return p, nil
	}, nil)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		selection := NewFilterSelection([]string{fmt.Sprint(i)}, nil, nil)
		params := fmt.Sprintf("p%d", i)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.Update(ctx, selection)
		}()
		go func() {
			defer wg.Done()
			f.SetParams(ctx, params)
		}()
		wg.Wait()

		require.Equal(t, FetchKey(selection, params), f.Result().Key, "iteration %d", i)
	}
	require.NoError(t, f.Wait(ctx))
}
