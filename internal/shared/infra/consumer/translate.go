package consumer

// externalToInternal mapea el vocabulario de eventos de otros servicios al
// vocabulario interno. Es una tabla pura y estática: sin estado mutable.
var externalToInternal = map[string]string{
	"inventory.stock.reserved":  "stock.reserved",
	"inventory.stock.confirmed": "stock.confirmed",
	"inventory.stock.released":  "stock.released",
	"inventory.stock.failed":    "stock.failed",

	"payment.payment.captured": "payment.captured",
	"payment.payment.failed":   "payment.failed",
	"payment.payment.refunded": "payment.refunded",
}

// TranslateEventType traduce un tipo externo al interno. Los tipos
// desconocidos pasan sin cambios.
func TranslateEventType(external string) string {
	if internal, ok := externalToInternal[external]; ok {
		return internal
	}
	return external
}
