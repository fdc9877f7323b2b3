package kleva

import (
	"time"

	"github.com/Elinez19/kleva/account"
	"github.com/Elinez19/kleva/notify"
)

// dispatch hands an event to the notifier. It never blocks and never
// fails the calling flow.
func (e *Engine) dispatch(typ notify.Type, acct *account.Account, token string, lockedUntil *time.Time) {
	e.notifier.Dispatch(notify.Event{
		Type:        typ,
		AccountID:   acct.ID,
		Email:       acct.Email,
		FirstName:   acct.Profile.FirstName,
		Token:       token,
		LockedUntil: lockedUntil,
		OccurredAt:  e.now(),
	})
}
