package daemon_test

import (
	"context"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/lending-daemon-go/app/daemon"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/borrow"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/deliver"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/expirequeueposition"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/memstore"
	"github.com/AntonStoeckl/lending-daemon-go/testutil/helper"
)

const (
	subjectCloseDeadline  = "borrowing deadline is approaching"
	subjectOverdue        = "deadline has passed"
	subjectNewlyAvailable = "is now available"
	subjectExpiring       = "queue position expiry deadline"
	subjectExpired        = "queue position has expired"
)

func Test_NewScheduler_ValidatesInput(t *testing.T) {
	store := memstore.New()
	notifier := helper.NewNotifierSpy()

	_, err := daemon.NewScheduler(nil, notifier)
	assert.ErrorIs(t, err, daemon.ErrNilStore)

	_, err = daemon.NewScheduler(store, nil)
	assert.ErrorIs(t, err, daemon.ErrNilNotifier)

	_, err = daemon.NewScheduler(store, notifier, daemon.WithLeaseTTL(0))
	assert.ErrorIs(t, err, daemon.ErrInvalidLeaseTTL)

	invalidPolicy := lending.DefaultPolicy()
	invalidPolicy.DeadlineLeadTimes = []time.Duration{lending.Day, lending.Day}
	_, err = daemon.NewScheduler(store, notifier, daemon.WithPolicy(invalidPolicy))
	assert.ErrorIs(t, err, lending.ErrInvalidPolicy)
}

func Test_Scheduler_RunPass_FirstPassSeedsWatermark(t *testing.T) {
	// setup
	ctx := context.Background()
	fakeClock := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)

	// act
	report, err := scheduler.RunPass(ctx, fakeClock)

	// assert
	require.NoError(t, err)
	assert.True(t, report.WatermarkAdvanced)
	assert.True(t, report.Window.IsEmpty())
	assert.Zero(t, notifier.Count())
	assertWatermark(t, store, fakeClock)
}

func Test_Scheduler_RunPass_PromotesAndLaterExpiresQueuePosition(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	alice := givenBorrowed(t, store, item.ID, "alice", t0)
	require.False(t, alice.Queued())
	bob := givenBorrowed(t, store, item.ID, "bob", t0.Add(lending.Day))
	require.True(t, bob.Queued())
	givenDelivered(t, store, alice.Borrowing.ID, t0.Add(5*lending.Day))

	// act
	promotionReport, promotionErr := scheduler.RunPass(ctx, t0.Add(5*lending.Day))
	promotedEntry, _ := store.QueueEntry(ctx, bob.QueueEntry.ID)
	notificationsAfterPromotion := notifier.Notifications()

	expiryReport, expiryErr := scheduler.RunPass(ctx, t0.Add(13*lending.Day))
	expiredEntry, _ := store.QueueEntry(ctx, bob.QueueEntry.ID)

	// assert
	require.NoError(t, promotionErr)
	assert.Equal(t, 1, promotionReport.Promotions)
	assert.Equal(t, lending.QueueEntryAvailable, promotedEntry.State())
	assert.Equal(t, t0.Add(5*lending.Day), *promotedEntry.AvailableTime)
	require.Len(t, notificationsAfterPromotion, 1)
	assert.Equal(t, "bob", notificationsAfterPromotion[0].Recipient)
	assert.Contains(t, notificationsAfterPromotion[0].Subject, subjectNewlyAvailable)
	assert.Contains(t, notificationsAfterPromotion[0].Body, "within 7 days")

	require.NoError(t, expiryErr)
	assert.Equal(t, 1, expiryReport.Expirations)
	assert.Equal(t, lending.QueueEntryExpired, expiredEntry.State())
	assert.Equal(t, 1, notifier.CountFor("bob", subjectExpiring))
	assert.Equal(t, 1, notifier.CountFor("bob", subjectExpired))
	assert.Contains(t, notifier.Notifications()[len(notifier.Notifications())-1].Body,
		"There are currently 0 users in the queue.")
	assertWatermark(t, store, t0.Add(13*lending.Day))
}

func Test_Scheduler_RunPass_WarnsOneLeadTimeBeforeQueuePositionExpires(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	alice := givenBorrowed(t, store, item.ID, "alice", t0)
	givenBorrowed(t, store, item.ID, "bob", t0.Add(lending.Day))
	givenDelivered(t, store, alice.Borrowing.ID, t0.Add(4*lending.Day))

	// act & assert
	for _, pass := range []struct {
		at       time.Duration
		expected int
	}{
		{at: 5 * lending.Day, expected: 0},
		{at: 10*lending.Day + 12*time.Hour, expected: 0},
		{at: 11 * lending.Day, expected: 1},
		{at: 11 * lending.Day, expected: 1},
	} {
		_, err := scheduler.RunPass(ctx, t0.Add(pass.at))
		require.NoError(t, err)
		assert.Equal(t, pass.expected, notifier.CountFor("bob", subjectExpiring), "pass at t0+%s", pass.at)
	}

	assert.Zero(t, notifier.CountFor("bob", subjectExpired))
}

func Test_Scheduler_RunPass_WalkInBorrowsCopyHeldForPromotedEntry(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	scheduler := givenScheduler(t, store, helper.NewNotifierSpy())
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	alice := givenBorrowed(t, store, item.ID, "alice", t0)
	bob := givenBorrowed(t, store, item.ID, "bob", t0.Add(lending.Day))
	givenDelivered(t, store, alice.Borrowing.ID, t0.Add(4*lending.Day))
	givenPassAt(t, scheduler, t0.Add(5*lending.Day))

	// act
	carol, _, carolErr := borrow.NewCommandHandler(store).Handle(ctx, borrow.BuildCommand(item.ID, "carol", t0.Add(6*lending.Day)))
	_, _, bobErr := borrow.NewCommandHandler(store).Handle(ctx, borrow.BuildCommand(item.ID, "bob", t0.Add(6*lending.Day)))

	// assert
	require.NoError(t, carolErr)
	assert.False(t, carol.Queued())
	require.NotNil(t, carol.Borrowing)
	assert.Equal(t, "carol", carol.Borrowing.BorrowerID)

	assert.ErrorIs(t, bobErr, lending.ErrDuplicateRequest, "the copy is gone, bob keeps the available entry")
	entry, err := store.QueueEntry(ctx, bob.QueueEntry.ID)
	require.NoError(t, err)
	assert.True(t, entry.IsAvailable())

	active, err := store.ActiveBorrowings(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func Test_Scheduler_RunPass_SendsCloseDeadlineReminderExactlyOnce(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	policy := lending.DefaultPolicy()
	policy.DeadlineLeadTimes = []time.Duration{lending.Days(3)}
	scheduler := givenScheduler(t, store, notifier, daemon.WithPolicy(policy))
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0, t0.Add(30*lending.Day))

	// act
	_, firstErr := scheduler.RunPass(ctx, t0.Add(27*lending.Day))
	afterFirst := notifier.Count()
	_, secondErr := scheduler.RunPass(ctx, t0.Add(27*lending.Day))

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, 1, afterFirst)
	assert.Equal(t, 1, notifier.Count(), "re-running at the same instant must not send anything")
	assert.Equal(t, 1, notifier.CountFor("alice", subjectCloseDeadline))
}

func Test_Scheduler_RunPass_SendsOneCloseDeadlineReminderPerLeadTime(t *testing.T) {
	// setup
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0, t0.Add(30*lending.Day))

	// act
	for day := 1; day <= 29; day++ {
		givenPassAt(t, scheduler, t0.Add(lending.Days(day)))
	}

	// assert
	assert.Equal(t, 2, notifier.CountFor("alice", subjectCloseDeadline))
	assert.Zero(t, notifier.CountFor("alice", subjectOverdue))
}

func Test_Scheduler_RunPass_RepeatsOverdueReminderEveryPass(t *testing.T) {
	// setup
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0.Add(-30*lending.Day), t0.Add(lending.Day))

	// act
	givenPassAt(t, scheduler, t0.Add(2*lending.Day))
	givenPassAt(t, scheduler, t0.Add(3*lending.Day))
	givenPassAt(t, scheduler, t0.Add(3*lending.Day))

	// assert
	assert.Equal(t, 3, notifier.CountFor("alice", subjectOverdue))
}

func Test_Scheduler_RunPass_ExpiryPromotesExactlyOneWaitingEntry(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	bob := helper.GivenAvailableEntry(t, store, item.ID, "bob", t0, t0)
	carol := helper.GivenWaitingEntry(t, store, item.ID, "carol", t0.Add(time.Hour))
	dave := helper.GivenWaitingEntry(t, store, item.ID, "dave", t0.Add(2*time.Hour))

	// act
	report, err := scheduler.RunPass(ctx, t0.Add(8*lending.Day))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expirations)
	assert.Equal(t, 1, report.Promotions)

	reloadedBob, _ := store.QueueEntry(ctx, bob.ID)
	reloadedCarol, _ := store.QueueEntry(ctx, carol.ID)
	reloadedDave, _ := store.QueueEntry(ctx, dave.ID)
	assert.Equal(t, lending.QueueEntryExpired, reloadedBob.State())
	assert.Equal(t, lending.QueueEntryAvailable, reloadedCarol.State())
	assert.Equal(t, t0.Add(8*lending.Day), *reloadedCarol.AvailableTime)
	assert.Equal(t, lending.QueueEntryWaiting, reloadedDave.State())

	assert.Equal(t, 1, notifier.CountFor("bob", subjectExpired))
	assert.Equal(t, 1, notifier.CountFor("carol", subjectNewlyAvailable))
	assert.Zero(t, notifier.CountFor("dave", ""))

	for _, n := range notifier.Notifications() {
		if n.Recipient == "bob" && n.Subject == "Your queue position has expired" {
			assert.Contains(t, n.Body, "There are currently 2 users in the queue.")
		}
	}
}

func Test_Scheduler_RunPass_PromotesInQueueOrder(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 2)
	alice := givenBorrowed(t, store, item.ID, "alice", t0)
	bob := givenBorrowed(t, store, item.ID, "bob", t0)
	carol := givenBorrowed(t, store, item.ID, "carol", t0.Add(time.Hour))
	dave := givenBorrowed(t, store, item.ID, "dave", t0.Add(2*time.Hour))
	erin := givenBorrowed(t, store, item.ID, "erin", t0.Add(3*time.Hour))
	givenDelivered(t, store, alice.Borrowing.ID, t0.Add(lending.Day))
	givenDelivered(t, store, bob.Borrowing.ID, t0.Add(lending.Day))

	// act
	report, err := scheduler.RunPass(ctx, t0.Add(2*lending.Day))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, report.Promotions)

	for requester, entry := range map[string]*lending.QueueEntry{
		"carol": carol.QueueEntry,
		"dave":  dave.QueueEntry,
	} {
		reloaded, _ := store.QueueEntry(ctx, entry.ID)
		assert.True(t, reloaded.IsAvailable(), requester)
		assert.Equal(t, 1, notifier.CountFor(requester, subjectNewlyAvailable))
	}

	reloadedErin, _ := store.QueueEntry(ctx, erin.QueueEntry.ID)
	assert.True(t, reloadedErin.IsWaiting())
	assert.Zero(t, notifier.CountFor("erin", ""))
}

func Test_Scheduler_RunPass_NotificationFailureDoesNotBlockWatermark(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy("alice")
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	logHandler := helper.NewLogHandlerSpy(false)
	scheduler := givenScheduler(
		t,
		store,
		notifier,
		daemon.WithMetrics(metricsCollector),
		daemon.WithContextualLogger(slog.New(logHandler)),
	)
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 2)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0.Add(-30*lending.Day), t0.Add(-lending.Day))
	helper.GivenBorrowing(t, store, item.ID, "bob", t0.Add(-30*lending.Day), t0.Add(-lending.Day))

	// act
	report, err := scheduler.RunPass(ctx, t0.Add(time.Hour))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotificationFailures)
	assert.Equal(t, 1, report.NotificationsSent)
	assert.True(t, report.WatermarkAdvanced)
	assert.Equal(t, 1, notifier.CountFor("bob", subjectOverdue))
	assertWatermark(t, store, t0.Add(time.Hour))

	assert.True(t, metricsCollector.HasCounterRecordForMetric(daemon.NotificationsMetric).
		WithLabel("kind", daemon.KindOverdue).WithStatus(daemon.StatusFailed).Assert())
	assert.True(t, logHandler.HasWarnLogWithMessage(daemon.LogMsgNotificationFailed).
		WithAttrValue("recipient", "alice").Assert())
}

func Test_Scheduler_RunPass_RepeatsWindowRemindersWhileARecordKeepsFailing(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	failing := givenScheduler(
		t,
		store,
		notifier,
		daemon.WithExpireHandler(failingExpireHandler{err: lending.ErrStoreUnavailable}),
	)
	givenPassAt(t, failing, t0)

	// arrange
	widget := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, widget.ID, "alice", t0, t0.Add(10*lending.Day))
	gadget := helper.GivenItem(t, store, "Gadget", 1)
	helper.GivenAvailableEntry(t, store, gadget.ID, "bob", t0, t0)

	// act
	_, firstErr := failing.RunPass(ctx, t0.Add(8*lending.Day))
	_, secondErr := failing.RunPass(ctx, t0.Add(8*lending.Day))

	// assert
	assert.ErrorIs(t, firstErr, daemon.ErrPassIncomplete)
	assert.ErrorIs(t, secondErr, daemon.ErrPassIncomplete)
	assert.Equal(t, 2, notifier.CountFor("alice", subjectCloseDeadline), "the kept window is scanned again")
	assertWatermark(t, store, t0)
}

func Test_Scheduler_RunPass_RecordFailureKeepsWatermark(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	logHandler := helper.NewLogHandlerSpy(false)
	failing := givenScheduler(
		t,
		store,
		notifier,
		daemon.WithExpireHandler(failingExpireHandler{err: lending.ErrStoreUnavailable}),
		daemon.WithContextualLogger(slog.New(logHandler)),
	)
	healthy := givenScheduler(t, store, notifier)
	givenPassAt(t, healthy, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	bob := helper.GivenAvailableEntry(t, store, item.ID, "bob", t0, t0)

	// act
	failedReport, failedErr := failing.RunPass(ctx, t0.Add(8*lending.Day))
	watermarkAfterFailure, _ := store.Watermark()
	retryReport, retryErr := healthy.RunPass(ctx, t0.Add(9*lending.Day))

	// assert
	assert.ErrorIs(t, failedErr, daemon.ErrPassIncomplete)
	assert.Equal(t, 1, failedReport.FailedRecords)
	assert.False(t, failedReport.WatermarkAdvanced)
	assert.Equal(t, t0, watermarkAfterFailure.LastRunTime)
	assert.True(t, logHandler.HasErrorLogWithMessage(daemon.LogMsgRecordFailed).
		WithAttrValue("step", daemon.StepExpirations).Assert())

	require.NoError(t, retryErr)
	assert.Equal(t, 1, retryReport.Expirations)
	reloaded, _ := store.QueueEntry(ctx, bob.ID)
	assert.Equal(t, lending.QueueEntryExpired, reloaded.State())
	assertWatermark(t, store, t0.Add(9*lending.Day))
}

func Test_Scheduler_RunPass_CapacityExceededIsFatal(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	scheduler := givenScheduler(t, store, notifier, daemon.WithMetrics(metricsCollector))
	givenPassAt(t, scheduler, t0)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0, t0.Add(30*lending.Day))
	helper.GivenBorrowing(t, store, item.ID, "bob", t0, t0.Add(30*lending.Day))
	carol := helper.GivenBorrowing(t, store, item.ID, "carol", t0, t0.Add(30*lending.Day))
	helper.GivenBorrowingReturned(t, store, carol, t0.Add(time.Hour))

	// act
	report, err := scheduler.RunPass(ctx, t0.Add(lending.Day))

	// assert
	assert.ErrorIs(t, err, lending.ErrCapacityExceeded)
	assert.False(t, report.WatermarkAdvanced)
	assertWatermark(t, store, t0)
	assert.True(t, metricsCollector.HasCounterRecordForMetric(daemon.CapacityViolationsMetric).
		WithLabel("step", daemon.StepPromotions).Assert())
	assert.True(t, metricsCollector.HasCounterRecordForMetric(daemon.PassCallsMetric).
		WithStatus(daemon.StatusError).Assert())
}

func Test_Scheduler_RunPass_ReturnsPassInProgressWhileLeaseIsHeld(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	notifier := helper.NewNotifierSpy()
	scheduler := givenScheduler(t, store, notifier)

	// arrange
	item := helper.GivenItem(t, store, "Widget", 1)
	helper.GivenBorrowing(t, store, item.ID, "alice", t0.Add(-30*lending.Day), t0.Add(-lending.Day))
	otherOwner := uuid.New()
	require.NoError(t, store.SeedWatermark(ctx, t0))
	_, acquired, err := store.AcquirePassLease(ctx, otherOwner, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, acquired)

	// act
	_, blockedErr := scheduler.RunPass(ctx, t0.Add(time.Minute))
	require.NoError(t, store.ReleasePassLease(ctx, otherOwner))
	_, releasedErr := scheduler.RunPass(ctx, t0.Add(2*time.Minute))

	// assert
	assert.ErrorIs(t, blockedErr, lending.ErrPassInProgress)
	require.NoError(t, releasedErr)
	assert.Equal(t, 1, notifier.CountFor("alice", subjectOverdue))
	assertWatermark(t, store, t0.Add(2*time.Minute))
}

func Test_Scheduler_RunPass_TakesOverExpiredLease(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	scheduler := givenScheduler(t, store, helper.NewNotifierSpy(), daemon.WithLeaseTTL(time.Minute))

	// arrange
	require.NoError(t, store.SeedWatermark(ctx, t0))
	_, acquired, err := store.AcquirePassLease(ctx, uuid.New(), t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, acquired)

	// act
	_, err = scheduler.RunPass(ctx, t0.Add(2*time.Minute))

	// assert
	require.NoError(t, err)
	assertWatermark(t, store, t0.Add(2*time.Minute))
}

func Test_Scheduler_RunPass_KeepsCapacityUnderRandomBorrowAndDeliver(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	scheduler := givenScheduler(t, store, helper.NewNotifierSpy())
	givenPassAt(t, scheduler, t0)
	borrowHandler := borrow.NewCommandHandler(store)
	deliverHandler := deliver.NewCommandHandler(store)
	random := rand.New(rand.NewSource(42))

	// arrange
	item := helper.GivenItem(t, store, "Widget", 2)
	people := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	now := t0

	// act & assert
	for step := 0; step < 300; step++ {
		now = now.Add(time.Duration(1+random.Intn(36)) * time.Hour)

		switch random.Intn(3) {
		case 0:
			_, _, err := borrowHandler.Handle(ctx, borrow.BuildCommand(item.ID, people[random.Intn(len(people))], now))
			if err != nil {
				require.True(t, shell.IsRejection(err), err.Error())
			}
		case 1:
			active, err := store.ActiveBorrowings(ctx, item.ID)
			require.NoError(t, err)

			if len(active) > 0 {
				_, _, err = deliverHandler.Handle(ctx, deliver.BuildCommand(active[random.Intn(len(active))].ID, now))
				require.NoError(t, err)
			}
		default:
			_, err := scheduler.RunPass(ctx, now)
			require.NoError(t, err)
		}

		active, err := store.ActiveBorrowings(ctx, item.ID)
		require.NoError(t, err)
		require.LessOrEqual(t, len(active), item.Capacity, "step %d", step)
	}
}

func Test_Scheduler_RunPass_Observability(t *testing.T) {
	// setup
	ctx := context.Background()
	t0 := givenFakeClock()
	store := memstore.New()
	logHandler := helper.NewLogHandlerSpy(false)
	metricsCollector := helper.NewMetricsCollectorSpy(true)
	tracingCollector := helper.NewTracingCollectorSpy(true)
	scheduler := givenScheduler(
		t,
		store,
		helper.NewNotifierSpy(),
		daemon.WithContextualLogger(slog.New(logHandler)),
		daemon.WithMetrics(metricsCollector),
		daemon.WithTracing(tracingCollector),
	)

	// act
	_, err := scheduler.RunPass(ctx, t0)

	// assert
	require.NoError(t, err)
	assert.True(t, logHandler.HasInfoLogWithMessage(daemon.LogMsgPassStarted).WithAttr("window_after").Assert())
	assert.True(t, logHandler.HasInfoLogWithMessage(daemon.LogMsgPassCompleted).WithDurationMS().Assert())
	assert.Equal(t, 6, logHandler.HasInfoLogWithMessage(daemon.LogMsgStepCompleted).Count())
	assert.True(t, metricsCollector.HasDurationRecordForMetric(daemon.PassDurationMetric).
		WithStatus(daemon.StatusSuccess).Assert())
	assert.True(t, metricsCollector.HasDurationRecordForMetric(daemon.StepDurationMetric).
		WithLabel("step", daemon.StepWatermark).Assert())
	assert.True(t, tracingCollector.HasSpanWithStatus(daemon.SpanNameRunPass, daemon.StatusSuccess))
	assert.True(t, tracingCollector.HasSpanWithStatus(daemon.SpanNameStep, daemon.StatusSuccess))
}

func Test_Scheduler_Watch(t *testing.T) {
	t.Run("rejects a non-positive interval", func(t *testing.T) {
		scheduler := givenScheduler(t, memstore.New(), helper.NewNotifierSpy())

		err := scheduler.Watch(context.Background(), 0)

		assert.ErrorIs(t, err, daemon.ErrInvalidInterval)
	})

	t.Run("runs passes until the context is canceled", func(t *testing.T) {
		// setup
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		t0 := givenFakeClock()
		store := memstore.New()
		calls := 0
		clock := func() time.Time {
			calls++
			if calls == 3 {
				cancel()
			}

			return t0.Add(time.Duration(calls-1) * lending.Day)
		}
		scheduler := givenScheduler(t, store, helper.NewNotifierSpy(), daemon.WithClock(clock))

		// act
		err := scheduler.Watch(ctx, time.Millisecond)

		// assert
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assertWatermark(t, store, t0.Add(lending.Day))
	})
}

type failingExpireHandler struct {
	err error
}

func (h failingExpireHandler) Handle(
	_ context.Context,
	_ expirequeueposition.Command,
) (expirequeueposition.Result, shell.HandlerResult, error) {

	return expirequeueposition.Result{}, shell.HandlerResult{}, h.err
}

func givenFakeClock() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func givenScheduler(t *testing.T, store daemon.Store, notifier *helper.NotifierSpy, opts ...daemon.Option) *daemon.Scheduler {
	t.Helper()

	scheduler, err := daemon.NewScheduler(store, notifier, opts...)
	require.NoError(t, err, "error in arranging test data")

	return scheduler
}

func givenPassAt(t *testing.T, scheduler *daemon.Scheduler, now time.Time) {
	t.Helper()

	_, err := scheduler.RunPass(context.Background(), now)
	require.NoError(t, err, "error in arranging test data")
}

func givenBorrowed(t *testing.T, store lending.Transactor, itemID uuid.UUID, requester string, now time.Time) borrow.Result {
	t.Helper()

	result, _, err := borrow.NewCommandHandler(store).Handle(context.Background(), borrow.BuildCommand(itemID, requester, now))
	require.NoError(t, err, "error in arranging test data")

	return result
}

func givenDelivered(t *testing.T, store lending.Transactor, borrowingID uuid.UUID, now time.Time) {
	t.Helper()

	_, _, err := deliver.NewCommandHandler(store).Handle(context.Background(), deliver.BuildCommand(borrowingID, now))
	require.NoError(t, err, "error in arranging test data")
}

func assertWatermark(t *testing.T, store *memstore.Store, expected time.Time) {
	t.Helper()

	watermark, ok := store.Watermark()
	require.True(t, ok)
	assert.Equal(t, expected, watermark.LastRunTime)
}
