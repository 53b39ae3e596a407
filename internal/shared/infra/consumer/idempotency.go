package consumer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdempotencyCache recuerda los eventId procesados recientemente por ESTE
// proceso. Es deliberadamente local: con varias instancias la deduplicación
// degrada a best-effort (limitación documentada, no un bug a arreglar).
//
// Las entradas solo se eliminan en el barrido periódico, y nunca antes de
// cumplir el TTL: la presencia de una entrada es evidencia suficiente (no
// necesaria) de procesamiento previo.
type IdempotencyCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time // eventId -> primera vez visto
	ttl     time.Duration
}

func NewIdempotencyCache(ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Seen indica si el eventId ya fue procesado. Una entrada expirada pero aún
// no barrida sigue contando como vista.
func (c *IdempotencyCache) Seen(eventID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[eventID]
	return ok
}

// Record registra el eventId tras un procesamiento exitoso. Conserva el
// primer timestamp si ya existía.
func (c *IdempotencyCache) Record(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[eventID]; !ok {
		c.entries[eventID] = time.Now().UTC()
	}
}

// Sweep elimina las entradas más antiguas que el TTL y devuelve cuántas quitó.
func (c *IdempotencyCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, firstSeen := range c.entries {
		if now.Sub(firstSeen) > c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len devuelve el número de entradas vivas (incluidas las expiradas sin barrer).
func (c *IdempotencyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper lanza el barrido periódico en segundo plano para acotar memoria.
func (c *IdempotencyCache) StartSweeper(ctx context.Context, interval time.Duration, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Sweep(time.Now().UTC()); removed > 0 {
					log.Debug("🧹 Barrido de caché de idempotencia",
						zap.Int("removed", removed),
						zap.Int("remaining", c.Len()),
					)
				}
			}
		}
	}()
}
