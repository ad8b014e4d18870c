package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SubsetResult is the outcome of one subset of a multi-subset run.
type SubsetResult struct {
	Subset string
	Result Result
	Err    error
}

// RunSubsets applies fn to every subset with at most workers running at
// once. A failing subset does not cancel the others; results come back in
// subset order and the returned error joins every subset error.
func RunSubsets(ctx context.Context, subsets []string, workers int, fn func(ctx context.Context, subset string) (Result, error)) ([]SubsetResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]SubsetResult, len(subsets))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, subset := range subsets {
		g.Go(func() error {
			res, err := guardSubset(ctx, subset, fn)
			results[i] = SubsetResult{Subset: subset, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("subset %s: %w", r.Subset, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func guardSubset(ctx context.Context, subset string, fn func(context.Context, string) (Result, error)) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, subset)
}
