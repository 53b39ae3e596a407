package queue

import (
	"context"

	"github.com/davicafu/orderflow/internal/jobs"
)

// ExecutorHandler adapta un jobs.Executor al contrato Handler de la cola.
// El error clasificado que devuelve el executor es el que la cola usa para
// decidir entre reprogramar y dead-letter.
func ExecutorHandler(exec *jobs.Executor) Handler {
	return func(ctx context.Context, job *Job) error {
		task := &jobs.Task{
			ID:          job.ID,
			Name:        job.Name,
			Queue:       job.Queue,
			Payload:     job.Payload,
			Attempt:     job.Attempt,
			MaxAttempts: job.MaxAttempts,
		}
		_, err := exec.Execute(ctx, task)
		return err
	}
}
