package services

import (
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("neuronudge-backend-go/internal/services")

// now is cut to microseconds, the precision timestamptz keeps, so elapsed
// times aggregated live equal those replayed from the stored log.
func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return clock().UTC().Truncate(time.Microsecond)
}
