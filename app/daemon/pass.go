package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/app/features/expirequeueposition"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/promote"
	"github.com/AntonStoeckl/lending-daemon-go/app/notify"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// pass holds the state of one RunPass call.
type pass struct {
	s      *Scheduler
	window lending.Window
	now    time.Time
	items  map[uuid.UUID]lending.Item
	report PassReport
}

func newPass(s *Scheduler, window lending.Window, now time.Time) *pass {
	return &pass{
		s:      s,
		window: window,
		now:    now,
		items:  make(map[uuid.UUID]lending.Item),
		report: PassReport{Window: window, StepRecords: make(map[string]int)},
	}
}

func (p *pass) runStep(ctx context.Context, name string, run func(ctx context.Context) (int, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := p.s.observer.startSpan(ctx, SpanNameStep, map[string]string{LogAttrStep: name})

	records, err := run(ctx)

	elapsed := time.Since(start)
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}

	p.report.StepRecords[name] = records
	p.s.observer.duration(ctx, StepDurationMetric, elapsed, map[string]string{LogAttrStep: name, LogAttrStatus: status})
	p.s.observer.finishSpan(span, status, elapsed, err)

	if err != nil {
		return err
	}

	p.s.observer.info(
		ctx,
		LogMsgStepCompleted,
		LogAttrStep, name,
		LogAttrCount, records,
		LogAttrDurationMS, shell.ToMilliseconds(elapsed),
	)

	return nil
}

// Step 1: one reminder per lead time for every active borrowing whose due time minus the lead lies in the window.
func (p *pass) sendCloseDeadlineReminders(ctx context.Context) (int, error) {
	records := 0

	for _, lead := range p.s.policy.DeadlineLeadTimes {
		borrowings, err := p.s.store.BorrowingsDueWithin(ctx, p.window.Shift(lead))
		if err != nil {
			return records, err
		}

		for _, borrowing := range borrowings {
			item, ok := p.item(ctx, StepCloseDeadlines, borrowing.ItemID)
			if !ok {
				continue
			}

			p.notify(ctx, KindCloseDeadline, borrowing.BorrowerID, p.s.templates.CloseDeadline(item.Name, borrowing.DueTime))
			records++
		}
	}

	return records, nil
}

// Step 2: fires on every pass for as long as the borrowing stays overdue.
func (p *pass) sendOverdueReminders(ctx context.Context) (int, error) {
	borrowings, err := p.s.store.BorrowingsOverdueAt(ctx, p.now)
	if err != nil {
		return 0, err
	}

	records := 0

	for _, borrowing := range borrowings {
		item, ok := p.item(ctx, StepOverdue, borrowing.ItemID)
		if !ok {
			continue
		}

		p.notify(ctx, KindOverdue, borrowing.BorrowerID, p.s.templates.Overdue(item.Name))
		records++
	}

	return records, nil
}

// Step 3: hand every copy returned in the window to the next requesters in line.
func (p *pass) promoteForReturnedItems(ctx context.Context) (int, error) {
	itemIDs, err := p.s.store.ItemsReturnedWithin(ctx, p.window)
	if err != nil {
		return 0, err
	}

	records := 0

	for _, itemID := range itemIDs {
		item, ok := p.item(ctx, StepPromotions, itemID)
		if !ok {
			continue
		}

		promoted, err := p.promoteAll(ctx, item)
		records += promoted

		if err != nil {
			return records, err
		}
	}

	return records, nil
}

// promoteAll promotes until nobody else can be promoted. Promotions can never outnumber the copies.
func (p *pass) promoteAll(ctx context.Context, item lending.Item) (int, error) {
	promoted := 0

	for promoted < item.Capacity {
		result, _, err := p.s.promoteHandler.Handle(ctx, promote.BuildCommand(item.ID, p.now))
		if err != nil {
			return promoted, p.recordFailure(ctx, StepPromotions, item.ID, err)
		}

		if result.Promoted == nil {
			break
		}

		promoted++
		p.report.Promotions++
		p.s.observer.transition(ctx, TransitionPromoted)
		p.notifyNewlyAvailable(ctx, item, *result.Promoted)
	}

	return promoted, nil
}

// Step 4: remind promoted requesters a lead time before their grace deadline.
func (p *pass) sendExpiringQueuePositionReminders(ctx context.Context) (int, error) {
	records := 0

	for _, lead := range p.s.policy.QueueExpiryLeadTimes {
		entries, err := p.s.store.QueueEntriesAvailableWithin(ctx, p.window.Shift(lead-p.s.policy.QueueExpiry))
		if err != nil {
			return records, err
		}

		for _, entry := range entries {
			item, ok := p.item(ctx, StepExpiringReminder, entry.ItemID)
			if !ok {
				continue
			}

			deadline, _ := p.s.policy.GraceDeadline(entry)
			p.notify(ctx, KindExpiringQueuePosition, entry.RequesterID, p.s.templates.ExpiringQueuePosition(item.Name, deadline))
			records++
		}
	}

	return records, nil
}

// Step 5: expire every available entry whose grace deadline lies before now.
func (p *pass) expireLapsedQueuePositions(ctx context.Context) (int, error) {
	entries, err := p.s.store.QueueEntriesAvailableBefore(ctx, p.now.Add(-p.s.policy.QueueExpiry))
	if err != nil {
		return 0, err
	}

	records := 0

	for _, entry := range entries {
		item, ok := p.item(ctx, StepExpirations, entry.ItemID)
		if !ok {
			continue
		}

		result, handlerResult, err := p.s.expireHandler.Handle(ctx, expirequeueposition.BuildCommand(entry.ID, p.now))
		if err != nil {
			if fatalErr := p.recordFailure(ctx, StepExpirations, entry.ID, err); fatalErr != nil {
				return records, fatalErr
			}

			continue
		}

		// claimed or expired by someone else since the query ran
		if handlerResult.Idempotent {
			continue
		}

		records++
		p.report.Expirations++
		p.s.observer.transition(ctx, TransitionExpired)
		p.notify(ctx, KindExpired, result.Expired.RequesterID, p.s.templates.Expired(item.Name, result.OpenQueueLength))

		if result.Promoted != nil {
			p.report.Promotions++
			p.s.observer.transition(ctx, TransitionPromoted)
			p.notifyNewlyAvailable(ctx, item, *result.Promoted)
		}
	}

	return records, nil
}

// Step 6.
func (p *pass) advanceWatermark(ctx context.Context) (int, error) {
	if err := p.s.store.AdvanceWatermark(ctx, p.now); err != nil {
		return 0, err
	}

	return 1, nil
}

func (p *pass) notifyNewlyAvailable(ctx context.Context, item lending.Item, entry lending.QueueEntry) {
	deadline, _ := p.s.policy.GraceDeadline(entry)
	graceDays := int(p.s.policy.QueueExpiry / lending.Day)

	p.notify(ctx, KindNewlyAvailable, entry.RequesterID, p.s.templates.NewlyAvailable(item.Name, deadline, graceDays))
}

// notify sends one notice. A failed notice is logged and counted and never fails the pass.
func (p *pass) notify(ctx context.Context, kind string, recipient string, mail notify.Mail) {
	if err := p.s.notifier.Notify(ctx, recipient, mail.Subject, mail.Body); err != nil {
		p.report.NotificationFailures++
		p.s.observer.notification(ctx, kind, StatusFailed)
		p.s.observer.warn(
			ctx,
			LogMsgNotificationFailed,
			LogAttrKind, kind,
			LogAttrRecipient, recipient,
			LogAttrSubject, mail.Subject,
			LogAttrError, err.Error(),
		)

		return
	}

	p.report.NotificationsSent++
	p.s.observer.notification(ctx, kind, StatusSent)
}

// item loads an item once per pass. A failed lookup counts as a failed record.
func (p *pass) item(ctx context.Context, step string, itemID uuid.UUID) (lending.Item, bool) {
	if item, ok := p.items[itemID]; ok {
		return item, true
	}

	item, err := p.s.store.Item(ctx, itemID)
	if err != nil {
		_ = p.recordFailure(ctx, step, itemID, err)
		return lending.Item{}, false
	}

	p.items[itemID] = item

	return item, true
}

// recordFailure logs and counts a record that could not be handled. It returns the error back when it must
// end the pass: an item with more active borrowings than copies or a canceled context.
func (p *pass) recordFailure(ctx context.Context, step string, recordID uuid.UUID, err error) error {
	p.report.FailedRecords++
	p.s.observer.recordFailure(ctx, step, recordID, err)

	if errors.Is(err, lending.ErrCapacityExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {

		return err
	}

	return nil
}
