package booking

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Notifier delivers events to the external notification dispatcher.
// Delivery is fire-and-forget: failures are logged by the caller and never
// roll back the transition that produced the event.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// IdentityProvider answers whether a holder manages a given elder. The
// booking core consults it once, during details validation.
type IdentityProvider interface {
	OwnsElder(ctx context.Context, holderID, elderID uuid.UUID) (bool, error)
}

// LogNotifier writes events to the process log. Stand-in when no dispatcher
// transport is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, ev Event) error {
	log.Printf("event type=%s doctor=%s holder=%s", ev.Type, ev.DoctorID, ev.HolderID)
	return nil
}
