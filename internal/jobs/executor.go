package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc informa el avance de un job (porcentaje y mensaje).
type ProgressFunc func(pct int, msg string)

// Processor es la lógica específica de un tipo de job. El executor aporta
// el ciclo de vida uniforme alrededor.
type Processor interface {
	Queue() string
	Process(ctx context.Context, task *Task, progress ProgressFunc) (map[string]interface{}, error)
}

// ProgressReporter persiste los eventos de progreso. Un fallo al reportar se
// loggea como warning y nunca hace fallar el job.
type ProgressReporter interface {
	Report(ctx context.Context, task *Task, pct int, msg string) error
}

// Executor envuelve un Processor con la gestión uniforme: progreso 0→100,
// medición de duración, conteo de intentos, clasificación de errores y señal
// de dead-letter en observabilidad. El enrutado real al dead-letter lo hace
// la cola, disparado por el error devuelto.
type Executor struct {
	proc        Processor
	classifier  RetryClassifier  // opcional, por defecto IsRetryableError
	reporter    ProgressReporter // opcional
	maxAttempts int
	log         *zap.Logger
}

func NewExecutor(proc Processor, maxAttempts int, log *zap.Logger) *Executor {
	e := &Executor{
		proc:        proc,
		maxAttempts: maxAttempts,
		log:         log,
	}
	// Un procesador puede traer su propia clasificación de errores.
	if c, ok := proc.(RetryClassifier); ok {
		e.classifier = c
	}
	return e
}

// WithReporter conecta la persistencia de progreso.
func (e *Executor) WithReporter(r ProgressReporter) *Executor {
	e.reporter = r
	return e
}

// Execute corre una ejecución completa del job. Devuelve el JobResult del
// intento (producido nuevo cada vez; attemptsMade = previos + 1) y, si falló,
// el error ya clasificado con Retryable/NonRetryable para que la cola decida
// entre reprogramar y dead-letter.
func (e *Executor) Execute(ctx context.Context, task *Task) (JobResult, error) {
	started := time.Now()
	lastPct := -1

	progress := func(pct int, msg string) {
		// El progreso solo avanza; un porcentaje regresivo se ignora.
		if pct < lastPct {
			return
		}
		lastPct = pct
		if e.reporter == nil {
			return
		}
		if err := e.reporter.Report(ctx, task, pct, msg); err != nil {
			e.log.Warn("⚠️ Fallo al reportar progreso, el job continúa",
				zap.String("job_id", task.ID),
				zap.Int("pct", pct),
				zap.Error(err),
			)
		}
	}

	progress(0, "Job started")

	data, err := e.proc.Process(ctx, task, progress)

	attemptsMade := task.Attempt + 1
	if err == nil {
		progress(100, "Job completed")
		e.log.Info("✅ Job completado",
			zap.String("queue", task.Queue),
			zap.String("job", task.Name),
			zap.String("job_id", task.ID),
			zap.Duration("took", time.Since(started)),
		)
		return JobResult{
			Success:      true,
			Data:         data,
			ProcessedAt:  time.Now().UTC(),
			Duration:     time.Since(started),
			AttemptsMade: attemptsMade,
		}, nil
	}

	retryable := e.isRetryable(err)
	kind := "non_retryable"
	if retryable {
		kind = "retryable"
	}

	e.log.Error("Job falló",
		zap.String("queue", task.Queue),
		zap.String("job", task.Name),
		zap.String("job_id", task.ID),
		zap.Int("attempt", attemptsMade),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	// La cola puede sobreescribir el máximo por job; la señal de dead-letter
	// debe coincidir con el máximo que ella va a aplicar.
	maxAttempts := e.maxAttempts
	if task.MaxAttempts > 0 {
		maxAttempts = task.MaxAttempts
	}

	if !retryable || attemptsMade >= maxAttempts {
		// Señal de observabilidad: la cola hará el enrutado real al dead-letter.
		e.log.Error("💀 Job agotó sus intentos, va a dead-letter",
			zap.String("queue", task.Queue),
			zap.String("job_id", task.ID),
			zap.Int("attempts", attemptsMade),
		)
	}

	classified := NonRetryable(err)
	if retryable {
		classified = Retryable(err)
	}

	return JobResult{
		Success: false,
		Error: &JobError{
			Kind:    kind,
			Message: task.Name,
			Detail:  err.Error(),
		},
		ProcessedAt:  time.Now().UTC(),
		Duration:     time.Since(started),
		AttemptsMade: attemptsMade,
	}, classified
}

func (e *Executor) isRetryable(err error) bool {
	if e.classifier != nil {
		return e.classifier.IsRetryable(err)
	}
	return IsRetryableError(err)
}
