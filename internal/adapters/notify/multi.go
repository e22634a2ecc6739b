package notify

import (
	"context"
	"errors"

	"pet-care-tracker/internal/domain/reminders"
)

// Multi entrega a todos los notifiers aunque alguno falle.
type Multi []reminders.Notifier

func (m Multi) Notify(ctx context.Context, n reminders.Notification) error {
	var errs []error
	for _, x := range m {
		if x == nil {
			continue
		}
		if err := x.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
