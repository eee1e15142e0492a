package executor

import (
	"context"

	"github.com/zeromicro/go-zero/core/threading"
)

// RunBatches runs handler over tasks, at most size at a time. Each batch is
// waited on before the next one starts. A panicking handler is recovered
// and does not stop its batch. When ctx is done no further batch is
// started. It returns the number of batches that ran.
func RunBatches[P any](ctx context.Context, tasks []P, size int, handler func(ctx context.Context, task P)) int {
	if size <= 0 {
		size = len(tasks)
	}
	batches := 0
	for begin := 0; begin < len(tasks); begin += size {
		if ctx.Err() != nil {
			break
		}
		end := begin + size
		if end > len(tasks) {
			end = len(tasks)
		}
		group := threading.NewRoutineGroup()
		for _, task := range tasks[begin:end] {
			task := task
			group.RunSafe(func() {
				handler(ctx, task)
			})
		}
		group.Wait()
		batches++
	}
	return batches
}
