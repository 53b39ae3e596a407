package jobs

import (
	"encoding/json"
	"time"
)

// JobData es la base común de todos los payloads de job. Una vez encolado,
// el backend de la cola es el dueño del dato; el servicio solo lo crea y lo lee.
type JobData struct {
	JobID         string            `json:"job_id"`
	CreatedAt     time.Time         `json:"created_at"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type OrderJobData struct {
	JobData
	OrderID string      `json:"order_id"`
	Items   []OrderItem `json:"items"`
	Total   float64     `json:"total"`
}

type PaymentJobData struct {
	JobData
	OrderID  string  `json:"order_id"`
	Method   string  `json:"method"` // card|transfer|wallet
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type InventoryJobData struct {
	JobData
	ProductID string `json:"product_id"`
	Action    string `json:"action"` // reserve|confirm|release
	Quantity  int    `json:"quantity"`
}

type NotificationJobData struct {
	JobData
	Channel   string            `json:"channel"` // email|sms|push
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Variables map[string]string `json:"variables,omitempty"`
}

// JobError describe el fallo de una ejecución.
type JobError struct {
	Kind    string `json:"kind"` // retryable|non_retryable
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// JobResult es el resultado de UNA ejecución. Se produce nuevo en cada
// intento y no se muta después de devolverlo.
type JobResult struct {
	Success      bool                   `json:"success"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Error        *JobError              `json:"error,omitempty"`
	ProcessedAt  time.Time              `json:"processed_at"`
	Duration     time.Duration          `json:"duration"`
	AttemptsMade int                    `json:"attempts_made"` // priorAttempts + 1
}

// Task es la vista que el executor le da al procesador: identidad del job
// más su payload serializado.
type Task struct {
	ID          string
	Name        string
	Queue       string
	Payload     json.RawMessage
	Attempt     int // intentos ya consumidos antes de esta ejecución
	MaxAttempts int // máximo efectivo del job; 0 = usar el del executor
}
