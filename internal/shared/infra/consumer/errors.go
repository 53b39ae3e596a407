package consumer

import "errors"

// permanentError marca un error de negocio que no tiene sentido reintentar
// (instrumento de pago inválido, destinatario dado de baja...). El pipeline
// lo manda directo al DLQ aunque sea el primer intento.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent envuelve err como fallo no reintentable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent indica si err (o alguna de sus causas) fue marcado como permanente.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
