package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/app/notify"
)

func Test_Templates(t *testing.T) {
	templates, err := notify.NewTemplates()
	require.NoError(t, err)

	deadline := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

	t.Run("close deadline", func(t *testing.T) {
		mail := templates.CloseDeadline("Widget", deadline)

		assert.Equal(t, "Reminder - Your borrowing deadline is approaching", mail.Subject)
		assert.Equal(t,
			"Your borrowing deadline for the following item is approaching:\n\nWidget\n\nPlease return the item by Fri May 31, 2024",
			mail.Body)
	})

	t.Run("overdue", func(t *testing.T) {
		mail := templates.Overdue("Widget")

		assert.Equal(t, "Your deadline has passed", mail.Subject)
		assert.Equal(t,
			"Your delivery deadline for the following item has passed:\n\nWidget\n\nPlease return the item as soon as possible.",
			mail.Body)
	})

	t.Run("newly available", func(t *testing.T) {
		mail := templates.NewlyAvailable("Widget", deadline, 7)

		assert.Equal(t, "An item you have queued for is now available", mail.Subject)
		assert.Equal(t,
			"The following item is now available for you to borrow:\n\nWidget\n\n"+
				"Please pick up the item within 7 days, by Fri May 31, 2024.",
			mail.Body)
	})

	t.Run("expiring queue position", func(t *testing.T) {
		mail := templates.ExpiringQueuePosition("Widget", deadline)

		assert.Equal(t, "Reminder - Your queue position expiry deadline is approaching", mail.Subject)
		assert.Contains(t, mail.Body, "Please borrow the item by Fri May 31, 2024")
	})

	t.Run("expired", func(t *testing.T) {
		mail := templates.Expired("Widget", 3)

		assert.Equal(t, "Your queue position has expired", mail.Subject)
		assert.Contains(t, mail.Body, "Your queue position for the following item has expired:\n\nWidget\n\n")
		assert.Contains(t, mail.Body, "There are currently 3 users in the queue.")
	})
}
