package jobs

import (
	"errors"
	"strings"
)

// nonRetryableError marca fallos de negocio que no merecen reintento:
// instrumento de pago inválido, destinatario dado de baja, plantilla inexistente.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable envuelve err como fallo definitivo.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// retryableError marca explícitamente un fallo como transitorio, por encima
// de la heurística de subcadenas.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable envuelve err como fallo transitorio.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// retryablePatterns son las pistas de fallo transitorio de infraestructura.
var retryablePatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"unavailable",
	"temporar", // temporary / temporarily
	"too many requests",
	"gateway",
	"network",
	"econnrefused",
}

// IsRetryableError clasifica un error por marcador explícito o por subcadena
// del mensaje. Los tipos de job pueden sustituir esta política implementando
// RetryClassifier.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var nre *nonRetryableError
	if errors.As(err, &nre) {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryClassifier permite a un procesador redefinir la clasificación de errores.
type RetryClassifier interface {
	IsRetryable(err error) bool
}
