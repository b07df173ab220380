package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

// memStore is an in-memory stand-in for the Postgres repositories. It
// implements UserStore, RoundStore, BetStore and LedgerStore, and supports
// snapshot/restore so memTx can emulate transactional rollback.
type memStore struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	rounds map[uuid.UUID]*model.Round
	bets   map[uuid.UUID]*model.Bet
	ledger []*model.LedgerEntry

	// beforeUpdateBalance, when set, runs ahead of every balance write and
	// can inject a failure mid-transaction.
	beforeUpdateBalance func(userID int64) error
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[int64]*model.User),
		rounds: make(map[uuid.UUID]*model.Round),
		bets:   make(map[uuid.UUID]*model.Bet),
	}
}

func (s *memStore) addUser(id int64, username string, balance int64) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{ID: id, Username: username, Role: model.RoleUser, Balance: balance}
	s.users[id] = u
	return u
}

func (s *memStore) balance(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Balance
}

func (s *memStore) ledgerByType(t model.LedgerType) []*model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range s.ledger {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memSnapshot struct {
	users  map[int64]model.User
	bets   map[uuid.UUID]model.Bet
	ledger []*model.LedgerEntry
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		users:  make(map[int64]model.User, len(s.users)),
		bets:   make(map[uuid.UUID]model.Bet, len(s.bets)),
		ledger: append([]*model.LedgerEntry(nil), s.ledger...),
	}
	for id, u := range s.users {
		snap.users[id] = *u
	}
	for id, b := range s.bets {
		snap.bets[id] = *b
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[int64]*model.User, len(snap.users))
	for id, u := range snap.users {
		u := u
		s.users[id] = &u
	}
	s.bets = make(map[uuid.UUID]*model.Bet, len(snap.bets))
	for id, b := range snap.bets {
		b := b
		s.bets[id] = &b
	}
	s.ledger = snap.ledger
}

// UserStore

func (s *memStore) Create(ctx context.Context, user *model.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.users) + 1)
	u := *user
	u.ID = id
	s.users[id] = &u
	return id, nil
}

func (s *memStore) ByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) ByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return s.ByID(ctx, id)
}

func (s *memStore) ByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateBalance(ctx context.Context, id int64, balance int64) error {
	if s.beforeUpdateBalance != nil {
		if err := s.beforeUpdateBalance(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Balance = balance
	return nil
}

func (s *memStore) List(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

// RoundStore

func (s *memStore) CreateRound(ctx context.Context, startedAt time.Time) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &model.Round{ID: uuid.New(), State: model.RoundBetting, StartedAt: startedAt}
	s.rounds[r.ID] = r
	return r, nil
}

func (s *memStore) SetState(ctx context.Context, id uuid.UUID, state model.RoundState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok {
		r.State = state
	}
	return nil
}

func (s *memStore) Finish(ctx context.Context, id uuid.UUID, result slot.Outcome, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok {
		r.State = model.RoundResult
		r.Result = &result
		r.FinishedAt = &finishedAt
	}
	return nil
}

func (s *memStore) roundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

// BetStore

func (s *memStore) CreateBet(ctx context.Context, bet *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *bet
	s.bets[b.ID] = &b
	return nil
}

func (s *memStore) Exists(ctx context.Context, userID int64, roundID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if b.UserID == userID && b.RoundID == roundID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ForRound(ctx context.Context, roundID uuid.UUID) ([]*model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Bet
	for _, b := range s.bets {
		if b.RoundID == roundID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) SetPayout(ctx context.Context, id uuid.UUID, payout int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bets[id]; ok {
		b.Payout = &payout
	}
	return nil
}

// LedgerStore

func (s *memStore) Record(ctx context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *entry
	e.ID = int64(len(s.ledger) + 1)
	s.ledger = append(s.ledger, &e)
	return nil
}

func (s *memStore) ForUser(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// roundAdapter and betAdapter split memStore's method set so it can satisfy
// the store interfaces despite the overlapping Create names.
type roundAdapter struct{ *memStore }

func (a roundAdapter) Create(ctx context.Context, startedAt time.Time) (*model.Round, error) {
	return a.CreateRound(ctx, startedAt)
}

type betAdapter struct{ *memStore }

func (a betAdapter) Create(ctx context.Context, bet *model.Bet) error {
	return a.CreateBet(ctx, bet)
}

// memTx emulates trm.Manager: a snapshot is taken before fn and restored
// when fn fails, giving all-or-nothing semantics over memStore.
type memTx struct {
	store *memStore
}

func (t *memTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// fakeBroadcast records everything the engine publishes.
type fakeBroadcast struct {
	mu       sync.Mutex
	events   []any
	balances []UserInfo
}

func (b *fakeBroadcast) Broadcast(event any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBroadcast) NotifyBalance(user UserInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = append(b.balances, user)
}

func (b *fakeBroadcast) eventsOfType(eventType string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, e := range b.events {
		switch ev := e.(type) {
		case RoundStateEvent:
			if ev.Type == eventType {
				out = append(out, ev)
			}
		case RoundResultEvent:
			if ev.Type == eventType {
				out = append(out, ev)
			}
		case BetPlacedEvent:
			if ev.Type == eventType {
				out = append(out, ev)
			}
		case PayoutEvent:
			if ev.Type == eventType {
				out = append(out, ev)
			}
		}
	}
	return out
}

// fakePresence toggles whether anyone appears connected.
type fakePresence struct {
	mu      sync.Mutex
	present bool
}

func (p *fakePresence) set(present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present = present
}

func (p *fakePresence) HasActiveParticipants() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present
}
