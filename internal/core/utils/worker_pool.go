package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool starts up to maxWorkers goroutines draining queue and closes
// completed once every worker has returned. Workers stop taking new items
// once ctx is done. A maxWorkers of 0 or less runs one worker per queued item.
func RunInPool[In any, Out any](ctx context.Context, worker func(context.Context, In) (Out, error), queue <-chan In, completed chan<- CompletedTask[Out], maxWorkers int) {
	workers := len(queue)
	if maxWorkers > 0 {
		workers = min(workers, maxWorkers)
	}

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					if ctx.Err() != nil {
						return
					}
					next, ok := <-queue
					if !ok {
						return
					}

					res, err := worker(ctx, next)
					if err != nil {
						completed <- CompletedTask[Out]{Error: err}
					} else {
						completed <- CompletedTask[Out]{Result: res, Error: nil}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
