package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/lending-daemon-go/app/core"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/borrow"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/deliver"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/extend"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
)

// ErrNilStore is returned by New for a nil store.
var ErrNilStore = errors.New("session store must not be nil")

// Store is the part of lending.Store a Session needs.
type Store interface {
	lending.ItemReader
	lending.Transactor
}

// Overview is what a front-end shows before offering borrow, deliver or extend.
type Overview struct {
	Item             lending.Item
	ActiveBorrowings lending.Borrowings
	OpenQueue        lending.QueueEntries
	FreeCopies       int
}

// Session serves borrow, deliver and extend requests.
type Session struct {
	store          Store
	policy         lending.Policy
	clock          func() time.Time
	borrowHandler  shell.CommandHandler[borrow.Command, borrow.Result]
	deliverHandler shell.CommandHandler[deliver.Command, deliver.Result]
	extendHandler  shell.CommandHandler[extend.Command, extend.Result]
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock every request reads its time from. The default is time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithPolicy sets the policy of the default borrow and extend handlers.
func WithPolicy(policy lending.Policy) Option {
	return func(s *Session) {
		s.policy = policy
	}
}

// WithBorrowHandler replaces the borrow handler, e.g. with an observable wrapper around it.
func WithBorrowHandler(handler shell.CommandHandler[borrow.Command, borrow.Result]) Option {
	return func(s *Session) {
		s.borrowHandler = handler
	}
}

// WithDeliverHandler replaces the deliver handler.
func WithDeliverHandler(handler shell.CommandHandler[deliver.Command, deliver.Result]) Option {
	return func(s *Session) {
		s.deliverHandler = handler
	}
}

// WithExtendHandler replaces the extend handler.
func WithExtendHandler(handler shell.CommandHandler[extend.Command, extend.Result]) Option {
	return func(s *Session) {
		s.extendHandler = handler
	}
}

// New creates a Session. Handlers not set by an option are created with the session's policy.
func New(store Store, opts ...Option) (*Session, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	s := &Session{
		store:  store,
		policy: lending.DefaultPolicy(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.policy.Validate(); err != nil {
		return nil, err
	}

	if s.borrowHandler == nil {
		s.borrowHandler = borrow.NewCommandHandler(store, borrow.WithPolicy(s.policy))
	}

	if s.deliverHandler == nil {
		s.deliverHandler = deliver.NewCommandHandler(store)
	}

	if s.extendHandler == nil {
		s.extendHandler = extend.NewCommandHandler(store, extend.WithPolicy(s.policy))
	}

	return s, nil
}

// Borrow lends a copy of the item to requester or puts requester in the item's queue.
func (s *Session) Borrow(ctx context.Context, itemID uuid.UUID, requester string) (borrow.Result, error) {
	result, _, err := s.borrowHandler.Handle(ctx, borrow.BuildCommand(itemID, requester, s.clock()))

	return result, err
}

// Deliver marks a borrowing as returned.
func (s *Session) Deliver(ctx context.Context, borrowingID uuid.UUID) (deliver.Result, error) {
	result, _, err := s.deliverHandler.Handle(ctx, deliver.BuildCommand(borrowingID, s.clock()))

	return result, err
}

// Extend moves the due time of a borrowing. It fails with lending.ErrQueueNonEmpty while somebody waits.
func (s *Session) Extend(ctx context.Context, borrowingID uuid.UUID) (extend.Result, error) {
	result, _, err := s.extendHandler.Handle(ctx, extend.BuildCommand(borrowingID, s.clock()))

	return result, err
}

// Overview reads a consistent snapshot of the item, its active borrowings by due time and its open queue.
func (s *Session) Overview(ctx context.Context, itemID uuid.UUID) (Overview, error) {
	var state core.ItemState

	err := s.store.InTx(ctx, func(ctx context.Context, tx lending.Tx) error {
		var loadErr error
		state, loadErr = shell.LoadItemState(ctx, tx, itemID)

		return loadErr
	})
	if err != nil {
		return Overview{}, err
	}

	return Overview{
		Item:             state.Item,
		ActiveBorrowings: state.ActiveBorrowings,
		OpenQueue:        state.OpenQueue,
		FreeCopies:       max(state.FreeCopies(), 0),
	}, nil
}
