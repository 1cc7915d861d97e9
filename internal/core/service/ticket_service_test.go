package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/ticket-marketplace/internal/adapter/gateway"
	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

const testEventID = "evt-1"

var buyer = domain.Principal{UserID: "user-1", Role: domain.RoleUser, Email: "user1@example.com", Name: "User One"}

type ticketFixture struct {
	svc      *TicketService
	store    *memStore
	cache    *mockCache
	gw       *gateway.FakeGateway
	notifier *recordingNotifier
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()

	store := newMemStore()
	require.NoError(t, store.CreateEvent(context.Background(), domain.Event{
		ID:          testEventID,
		OrganizerID: "org-1",
		Title:       "Rock Night",
		Status:      domain.EventStatusApproved,
		Tiers: []domain.Tier{
			{Name: domain.TierVIP, UnitPrice: decimal.NewFromInt(500), Remaining: 10, Allocated: 10},
			{Name: domain.TierGold, UnitPrice: decimal.NewFromInt(100), Remaining: 1, Allocated: 1},
		},
	}))

	f := &ticketFixture{
		store:    store,
		cache:    newMockCache(),
		gw:       gateway.NewFakeGateway(false),
		notifier: &recordingNotifier{},
	}
	f.svc = NewTicketService(TicketServiceDeps{
		Events:   store,
		Tickets:  store,
		Attempts: store,
		Cache:    f.cache,
		Gateway:  f.gw,
		Notifier: f.notifier,
		Currency: "inr",
	})
	return f
}

func vipRequest(qty int) PurchaseRequest {
	return PurchaseRequest{EventID: testEventID, TierName: domain.TierVIP, Quantity: qty, Price: decimal.NewFromInt(500)}
}

// buy runs create-intent, pays it and confirms.
func (f *ticketFixture) buy(t *testing.T, who domain.Principal, req PurchaseRequest) (*domain.Ticket, string, error) {
	t.Helper()
	intent, err := f.svc.CreateIntent(context.Background(), who, req)
	require.NoError(t, err)
	f.gw.Pay(intent.PaymentIntentID)
	ticket, err := f.svc.Confirm(context.Background(), who, ConfirmRequest{PurchaseRequest: req, PaymentIntentID: intent.PaymentIntentID})
	return ticket, intent.PaymentIntentID, err
}

func TestCreateIntent_AmountFromTierPrice(t *testing.T) {
	f := newTicketFixture(t)

	intent, err := f.svc.CreateIntent(context.Background(), buyer, vipRequest(2))
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ClientSecret)

	got, err := f.gw.RetrieveChargeIntent(context.Background(), intent.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), got.AmountMinor)
	assert.Equal(t, domain.AttemptIntentCreated, f.store.attemptState(intent.PaymentIntentID))
	assert.Equal(t, 10, f.store.remaining(testEventID, domain.TierVIP), "intent must not touch inventory")
}

func TestCreateIntent_Rejections(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, buyer, PurchaseRequest{EventID: "missing", TierName: domain.TierVIP, Quantity: 1, Price: decimal.NewFromInt(500)})
	assert.ErrorIs(t, err, ErrNotFound)

	req := vipRequest(1)
	req.Price = decimal.NewFromInt(1)
	_, err = f.svc.CreateIntent(ctx, buyer, req)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateIntent(ctx, buyer, vipRequest(0))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateIntent(ctx, buyer, PurchaseRequest{EventID: testEventID, TierName: domain.TierSilver, Quantity: 1, Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.store.UpdateEventStatus(ctx, testEventID, "", domain.EventStatusSuspended)
	require.NoError(t, err)
	_, err = f.svc.CreateIntent(ctx, buyer, vipRequest(1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirm_Success(t *testing.T) {
	f := newTicketFixture(t)

	ticket, intentID, err := f.buy(t, buyer, vipRequest(2))
	require.NoError(t, err)

	assert.True(t, ticket.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, domain.TicketStatusSuccess, ticket.Status)
	assert.Equal(t, intentID, ticket.PaymentIntentID)
	assert.Equal(t, "org-1", ticket.OrganizerID)
	require.Len(t, ticket.LineItems, 1)
	assert.Equal(t, 2, ticket.LineItems[0].Quantity)
	assert.True(t, ticket.LineItems[0].UnitPrice.Equal(decimal.NewFromInt(500)))

	assert.Equal(t, 8, f.store.remaining(testEventID, domain.TierVIP))
	assert.Equal(t, domain.AttemptNotified, f.store.attemptState(intentID))
	assert.Equal(t, []domain.NotificationKind{domain.NotificationTicketConfirmed}, f.notifier.kinds())
}

func TestConfirm_PaymentNotCompleted(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, buyer, vipRequest(1))
	require.NoError(t, err)
	f.gw.SetStatus(intent.PaymentIntentID, domain.IntentRequiresAction)

	req := ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intent.PaymentIntentID}
	_, err = f.svc.Confirm(ctx, buyer, req)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, 10, f.store.remaining(testEventID, domain.TierVIP))
	assert.Equal(t, 0, f.store.ticketCount())
	assert.Equal(t, domain.AttemptPaymentRejected, f.store.attemptState(intent.PaymentIntentID))
	assert.False(t, f.cache.held(confirmKeyPrefix+intent.PaymentIntentID))

	// the buyer finishes the payment and retries
	f.gw.Pay(intent.PaymentIntentID)
	_, err = f.svc.Confirm(ctx, buyer, req)
	require.NoError(t, err)
	assert.Equal(t, 9, f.store.remaining(testEventID, domain.TierVIP))
}

func TestConfirm_LastTicketContention(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	const buyers = 20

	req := PurchaseRequest{EventID: testEventID, TierName: domain.TierGold, Quantity: 1, Price: decimal.NewFromInt(100)}
	confirms := make([]ConfirmRequest, buyers)
	principals := make([]domain.Principal, buyers)
	for i := range confirms {
		principals[i] = domain.Principal{UserID: fmt.Sprintf("user-%d", i), Role: domain.RoleUser}
		intent, err := f.svc.CreateIntent(ctx, principals[i], req)
		require.NoError(t, err)
		f.gw.Pay(intent.PaymentIntentID)
		confirms[i] = ConfirmRequest{PurchaseRequest: req, PaymentIntentID: intent.PaymentIntentID}
	}

	var wg sync.WaitGroup
	var success, soldOut, other int32
	for i := range confirms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, principals[i], confirms[i])
			switch {
			case err == nil:
				atomic.AddInt32(&success, 1)
			case errors.Is(err, ErrInsufficientInventory):
				atomic.AddInt32(&soldOut, 1)
			default:
				atomic.AddInt32(&other, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), success)
	assert.Equal(t, int32(buyers-1), soldOut)
	assert.Equal(t, int32(0), other)
	assert.Equal(t, 0, f.store.remaining(testEventID, domain.TierGold))
	assert.Equal(t, 1, f.store.ticketCount())

	// every captured-but-rejected payment is refunded by the reconciler
	rec := NewReconciler(f.store, f.store, f.gw, nil, nil, 0)
	rec.Run(ctx)
	assert.Equal(t, buyers-1, f.gw.RefundCount())
	for _, c := range confirms {
		state := f.store.attemptState(c.PaymentIntentID)
		assert.Contains(t, []domain.AttemptState{domain.AttemptNotified, domain.AttemptRefunded}, state)
	}
}

func TestConfirm_Duplicate(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	_, intentID, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)

	req := ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intentID}
	_, err = f.svc.Confirm(ctx, buyer, req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	// idempotency key expired: the attempt state still blocks a second ticket
	require.NoError(t, f.cache.ReleaseIdempotency(ctx, confirmKeyPrefix+intentID))
	_, err = f.svc.Confirm(ctx, buyer, req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	assert.Equal(t, 9, f.store.remaining(testEventID, domain.TierVIP))
	assert.Equal(t, 1, f.store.ticketCount())
}

func TestConfirm_AmountMismatch(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, buyer, vipRequest(2))
	require.NoError(t, err)
	f.gw.Pay(intent.PaymentIntentID)
	f.gw.SetAmount(intent.PaymentIntentID, 100)

	_, err = f.svc.Confirm(ctx, buyer, ConfirmRequest{PurchaseRequest: vipRequest(2), PaymentIntentID: intent.PaymentIntentID})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, domain.AttemptAmountRejected, f.store.attemptState(intent.PaymentIntentID))
	assert.Equal(t, 10, f.store.remaining(testEventID, domain.TierVIP))
	assert.True(t, f.cache.held(confirmKeyPrefix+intent.PaymentIntentID))
}

func TestConfirm_RequestDiffersFromIntent(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, buyer, vipRequest(1))
	require.NoError(t, err)
	f.gw.Pay(intent.PaymentIntentID)

	key := confirmKeyPrefix + intent.PaymentIntentID

	// a wrong quantity is a client mistake and must not burn the intent
	_, err = f.svc.Confirm(ctx, buyer, ConfirmRequest{PurchaseRequest: vipRequest(5), PaymentIntentID: intent.PaymentIntentID})
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, f.cache.held(key))
	assert.Equal(t, domain.AttemptIntentCreated, f.store.attemptState(intent.PaymentIntentID))

	// another user's attempt must not lock the owner out
	other := domain.Principal{UserID: "user-2", Role: domain.RoleUser}
	_, err = f.svc.Confirm(ctx, other, ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intent.PaymentIntentID})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, f.cache.held(key))
	assert.Equal(t, 0, f.store.ticketCount())

	ticket, err := f.svc.Confirm(ctx, buyer, ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intent.PaymentIntentID})
	require.NoError(t, err)
	assert.Equal(t, buyer.UserID, ticket.BuyerID)
	assert.Equal(t, 9, f.store.remaining(testEventID, domain.TierVIP))
}

func TestConfirm_NotificationFailureIsNotFatal(t *testing.T) {
	f := newTicketFixture(t)
	f.notifier.err = errors.New("smtp down")

	ticket, intentID, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)
	assert.NotNil(t, ticket)
	assert.Equal(t, domain.AttemptTicketRecorded, f.store.attemptState(intentID))
}

func TestConfirm_StorageFailureReleasesKey(t *testing.T) {
	f := newTicketFixture(t)
	f.store.recordErr = errors.New("connection reset")

	_, intentID, err := f.buy(t, buyer, vipRequest(1))
	require.Error(t, err)
	assert.False(t, f.cache.held(confirmKeyPrefix+intentID))

	f.store.recordErr = nil
	_, err = f.svc.Confirm(context.Background(), buyer, ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intentID})
	require.NoError(t, err)
}

func TestCancel_RoundTrip(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, intentID, err := f.buy(t, buyer, vipRequest(2))
	require.NoError(t, err)
	require.Equal(t, 8, f.store.remaining(testEventID, domain.TierVIP))

	refunded, err := f.svc.Cancel(ctx, buyer, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRefunded, refunded.Status)
	assert.Equal(t, 10, f.store.remaining(testEventID, domain.TierVIP))
	assert.True(t, f.gw.Refunded(intentID))
	assert.Equal(t, []domain.NotificationKind{domain.NotificationTicketConfirmed, domain.NotificationTicketRefunded}, f.notifier.kinds())

	mine, err := f.svc.ListMyTickets(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCancel_AlreadyRefunded(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, _, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, buyer, ticket.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, buyer, ticket.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, f.gw.RefundCount())
	assert.Equal(t, 10, f.store.remaining(testEventID, domain.TierVIP))
}

func TestCancel_Rejections(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, _, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, buyer, "not-a-uuid")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Cancel(ctx, buyer, "5b0e7f5c-8a43-4d55-9a4e-6f1b1a2f0c11")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Cancel(ctx, domain.Principal{UserID: "intruder"}, ticket.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, 0, f.gw.RefundCount())
	assert.Equal(t, 9, f.store.remaining(testEventID, domain.TierVIP))
}

func TestCancel_RefundFailureLeavesTicket(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, _, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)

	f.gw.FailRefunds(true)
	_, err = f.svc.Cancel(ctx, buyer, ticket.ID)
	assert.ErrorIs(t, err, ErrRefundFailed)
	assert.False(t, f.cache.held(refundKeyPrefix+ticket.ID))

	stored, err := f.store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusSuccess, stored.Status)
	assert.Equal(t, 9, f.store.remaining(testEventID, domain.TierVIP))

	f.gw.FailRefunds(false)
	_, err = f.svc.Cancel(ctx, buyer, ticket.ID)
	require.NoError(t, err)
}

func TestCancel_TierRemovedCountsAsMiss(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, _, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.events[testEventID].Tiers = f.store.events[testEventID].Tiers[1:]
	f.store.mu.Unlock()

	refunded, err := f.svc.Cancel(ctx, buyer, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRefunded, refunded.Status)
}

func TestListTransactions(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := f.buy(t, buyer, vipRequest(1))
		require.NoError(t, err)
	}

	page, err := f.svc.ListTransactions(ctx, domain.TicketFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Tickets, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)

	_, err = f.svc.ListTransactions(ctx, domain.TicketFilter{Status: "bogus"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirm_AfterExpiryRetriesFromFreshState(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	intent, err := f.svc.CreateIntent(ctx, buyer, vipRequest(1))
	require.NoError(t, err)
	f.gw.Pay(intent.PaymentIntentID)

	// the buyer loaded the attempt as intent_created; the sweep expires it before payment_verified lands
	stale := &staleAttempts{memStore: f.store, onGet: func() {
		require.NoError(t, f.store.MarkAttempt(ctx, intent.PaymentIntentID, domain.AttemptIntentCreated, domain.AttemptExpired, ""))
	}}
	f.svc.attempts = stale

	ticket, err := f.svc.Confirm(ctx, buyer, ConfirmRequest{PurchaseRequest: vipRequest(1), PaymentIntentID: intent.PaymentIntentID})
	require.NoError(t, err)
	assert.Equal(t, intent.PaymentIntentID, ticket.PaymentIntentID)
	assert.Contains(t, []domain.AttemptState{domain.AttemptTicketRecorded, domain.AttemptNotified}, f.store.attemptState(intent.PaymentIntentID))
}

// staleAttempts runs onGet once after the first GetAttempt returns.
type staleAttempts struct {
	*memStore
	onGet func()
}

func (s *staleAttempts) GetAttempt(ctx context.Context, intentID string) (*domain.PurchaseAttempt, error) {
	a, err := s.memStore.GetAttempt(ctx, intentID)
	if s.onGet != nil {
		run := s.onGet
		s.onGet = nil
		run()
	}
	return a, err
}

func TestEventSales(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	first, _, err := f.buy(t, buyer, vipRequest(2))
	require.NoError(t, err)
	_, _, err = f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, buyer, first.ID)
	require.NoError(t, err)

	sales, err := f.svc.EventSales(ctx, admin, testEventID)
	require.NoError(t, err)
	assert.Equal(t, testEventID, sales.Event.ID)
	assert.Equal(t, 2, sales.TotalTicketsSold)
	assert.True(t, decimal.NewFromInt(500).Equal(sales.Revenue), "refunded tickets earn nothing")
	assert.Len(t, sales.Tickets, 2)

	_, err = f.svc.EventSales(ctx, buyer, testEventID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.EventSales(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket, _, err := f.buy(t, buyer, vipRequest(1))
	require.NoError(t, err)

	got, err := f.svc.Transaction(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.PaymentIntentID, got.PaymentIntentID)

	_, err = f.svc.Transaction(ctx, buyer, ticket.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Transaction(ctx, admin, "nope")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Transaction(ctx, admin, "5b0e7f5c-8a43-4d55-9a4e-6f1b1a2f0c11")
	assert.ErrorIs(t, err, ErrNotFound)
}
