package obl

import "golang.org/x/sync/errgroup"

//MapMerge runs mapFn over every range and merges the partial results into output.
//The first range is mapped on the calling goroutine directly into output, the others are mapped
//concurrently into private values. mergeFn runs on the calling goroutine after all workers finished
//and receives the partial results in range order.
func MapMerge[T any](ranges []IndexRange, mapFn func(r IndexRange, out *T), mergeFn func(out *T, parts []T), output *T) {
	if len(ranges) == 0 {
		return
	}
	parts := make([]T, len(ranges)-1)

	var g errgroup.Group
	for ind := 1; ind < len(ranges); ind++ {
		ind := ind
		g.Go(func() error {
			mapFn(ranges[ind], &parts[ind-1])
			return nil
		})
	}
	mapFn(ranges[0], output)
	//workers never return errors, a panic in mapFn crashes the process
	_ = g.Wait()

	if len(parts) > 0 {
		mergeFn(output, parts)
	}
}
