// Package engine implements the round orchestration state machine: it owns
// the single current round, advances it on a clock
// (IDLE → BETTING → SPINNING → RESULT → IDLE), accepts bets under timing and
// balance constraints, and settles payouts atomically.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
	"github.com/reelroom/reelroom/internal/store"
)

// Validation rejections surfaced to callers of PlaceBet. The texts are shown
// to players verbatim, so they stay human-readable and leak nothing internal.
var (
	ErrBettingClosed       = errors.New("betting is closed")
	ErrInvalidAmount       = errors.New("bet amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateBet        = errors.New("bet already placed this round")
	ErrUnknownUser         = errors.New("user not found")
)

// Presence reports whether any authenticated session is connected. While
// nobody is watching, the machine parks in IDLE and burns no rounds.
type Presence interface {
	HasActiveParticipants() bool
}

// Broadcaster fans events out to every live session. Delivery is
// fire-and-forget, best-effort.
type Broadcaster interface {
	Broadcast(event any)
	NotifyBalance(user UserInfo)
}

// TxManager runs fn inside one database transaction; any error rolls the
// whole transaction back. Satisfied by trm.Manager.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Timings are the fixed phase durations of the round cycle.
type Timings struct {
	Betting  time.Duration
	Spinning time.Duration
	Result   time.Duration
	Tick     time.Duration
}

// Deps wires the manager's collaborators.
type Deps struct {
	Logger    *log.Logger
	Clock     quartz.Clock
	Generator *slot.Generator
	Tx        TxManager
	Users     store.UserStore
	Rounds    store.RoundStore
	Bets      store.BetStore
	Ledger    store.LedgerStore
	Presence  Presence
	Broadcast Broadcaster
	Timings   Timings
}

// Manager is the round state machine. It is the only component that creates
// or transitions rounds; all shared state behind mu is exposed through its
// methods only.
type Manager struct {
	logger    *log.Logger
	clock     quartz.Clock
	gen       *slot.Generator
	tx        TxManager
	users     store.UserStore
	rounds    store.RoundStore
	bets      store.BetStore
	ledger    store.LedgerStore
	presence  Presence
	broadcast Broadcaster
	timings   Timings

	mu      sync.Mutex
	state   model.RoundState
	current *model.Round
	phase   *quartz.Timer
	started bool

	ctx      context.Context
	cancel   context.CancelFunc
	tickDone chan struct{}
}

// New builds a stopped manager in IDLE.
func New(deps Deps) *Manager {
	return &Manager{
		logger:    deps.Logger.WithPrefix("engine"),
		clock:     deps.Clock,
		gen:       deps.Generator,
		tx:        deps.Tx,
		users:     deps.Users,
		rounds:    deps.Rounds,
		bets:      deps.Bets,
		ledger:    deps.Ledger,
		presence:  deps.Presence,
		broadcast: deps.Broadcast,
		timings:   deps.Timings,
		state:     model.RoundIdle,
	}
}

// Start launches the driving tick. The tick only moves IDLE → BETTING; every
// other transition is scheduled by a one-shot timer at the end of the
// previous phase, so exact timing is duration-driven rather than derived
// from the poll granularity.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.tickDone = make(chan struct{})
	m.mu.Unlock()

	waiter := m.clock.TickerFunc(m.ctx, m.timings.Tick, func() error {
		m.tick()
		return nil
	}, "round-tick")

	go func() {
		defer close(m.tickDone)
		_ = waiter.Wait()
	}()

	m.logger.Info("Round engine started",
		"betting", m.timings.Betting,
		"spinning", m.timings.Spinning,
		"result", m.timings.Result)
}

// Stop cancels the tick and any pending phase timer. In-flight transactions
// are allowed to complete.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	if m.phase != nil {
		m.phase.Stop()
		m.phase = nil
	}
	cancel := m.cancel
	done := m.tickDone
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("Round engine stopped")
}

// State returns the current lifecycle phase.
func (m *Manager) State() model.RoundState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentRoundID returns the id of the current round, if one exists.
func (m *Manager) CurrentRoundID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return uuid.UUID{}, false
	}
	return m.current.ID, true
}

// CurrentBets lists the bets of the current round, for late-joining clients.
func (m *Manager) CurrentBets(ctx context.Context) ([]*model.Bet, error) {
	id, ok := m.CurrentRoundID()
	if !ok {
		return nil, nil
	}
	return m.bets.ForRound(ctx, id)
}

func (m *Manager) tick() {
	if !m.presence.HasActiveParticipants() {
		return
	}
	m.mu.Lock()
	idle := m.state == model.RoundIdle
	m.mu.Unlock()
	if idle {
		m.enterBetting()
	}
}

func (m *Manager) enterBetting() {
	round, err := m.rounds.Create(m.ctx, m.clock.Now())
	if err != nil {
		m.logger.Error("Failed to create round, staying idle", "error", err)
		return
	}

	m.mu.Lock()
	m.state = model.RoundBetting
	m.current = round
	m.schedule(m.timings.Betting, m.enterSpinning)
	m.mu.Unlock()

	m.logger.Info("Betting open", "round", round.ID)
	m.broadcast.Broadcast(RoundStateEvent{
		Type:      EventRoundState,
		State:     model.RoundBetting,
		RoundID:   round.ID,
		BettingMs: m.timings.Betting.Milliseconds(),
	})
}

func (m *Manager) enterSpinning() {
	m.mu.Lock()
	round := m.current
	if round == nil {
		m.resetLocked()
		m.mu.Unlock()
		return
	}
	m.state = model.RoundSpinning
	round.State = model.RoundSpinning
	m.schedule(m.timings.Spinning, m.enterResult)
	m.mu.Unlock()

	if err := m.rounds.SetState(m.ctx, round.ID, model.RoundSpinning); err != nil {
		m.logger.Error("Failed to persist round state", "round", round.ID, "error", err)
	}

	m.logger.Info("Betting closed, spinning", "round", round.ID)
	m.broadcast.Broadcast(RoundStateEvent{
		Type:       EventRoundState,
		State:      model.RoundSpinning,
		RoundID:    round.ID,
		SpinningMs: m.timings.Spinning.Milliseconds(),
	})
}

func (m *Manager) enterResult() {
	m.mu.Lock()
	round := m.current
	if round == nil {
		m.resetLocked()
		m.mu.Unlock()
		return
	}
	m.state = model.RoundResult
	round.State = model.RoundResult
	m.schedule(m.timings.Result, m.reset)
	m.mu.Unlock()

	outcome := m.gen.Generate()

	if err := m.applyPayouts(m.ctx, round.ID, outcome); err != nil {
		// The payout pass is all-or-nothing: on failure nothing was
		// credited and no payout is announced for this round.
		m.logger.Error("Payout settlement failed, round unpaid", "round", round.ID, "error", err)
	}

	if err := m.rounds.Finish(m.ctx, round.ID, outcome, m.clock.Now()); err != nil {
		m.logger.Error("Failed to persist round result", "round", round.ID, "error", err)
	}

	m.logger.Info("Round result", "round", round.ID,
		"lineWin", outcome.LineWin, "symbol", outcome.WinningSymbol)
	m.broadcast.Broadcast(RoundResultEvent{
		Type:    EventRoundResult,
		RoundID: round.ID,
		Result:  outcome,
	})
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

// resetLocked returns the machine to IDLE and releases the current round.
// Also the recovery path when a phase timer fires without a round.
func (m *Manager) resetLocked() {
	m.state = model.RoundIdle
	m.current = nil
	m.phase = nil
}

// schedule arms the next phase transition, replacing any pending timer.
// Callers hold mu.
func (m *Manager) schedule(d time.Duration, fn func()) {
	if m.phase != nil {
		m.phase.Stop()
	}
	m.phase = m.clock.AfterFunc(d, fn)
}

// bettingOpen re-checks that the given round is still accepting bets.
func (m *Manager) bettingOpen(roundID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == model.RoundBetting && m.current != nil && m.current.ID == roundID
}

// PlaceBet validates and commits a wager for the current round. The debit,
// the BET ledger entry and the bet row are written in one transaction; a
// failure anywhere rolls back all three. The betting state is checked at
// entry and re-validated inside the transaction, closing the race where the
// betting timer fires mid-commit.
func (m *Manager) PlaceBet(ctx context.Context, userID int64, amount int64) (*model.Bet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	if m.state != model.RoundBetting || m.current == nil {
		m.mu.Unlock()
		return nil, ErrBettingClosed
	}
	roundID := m.current.ID
	m.mu.Unlock()

	var (
		bet    *model.Bet
		bettor UserInfo
	)
	err := m.tx.Do(ctx, func(txCtx context.Context) error {
		if !m.bettingOpen(roundID) {
			return ErrBettingClosed
		}

		user, err := m.users.ByIDForUpdate(txCtx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return ErrUnknownUser
		}
		if user.Balance < amount {
			return ErrInsufficientBalance
		}

		exists, err := m.bets.Exists(txCtx, userID, roundID)
		if err != nil {
			return fmt.Errorf("check existing bet: %w", err)
		}
		if exists {
			return ErrDuplicateBet
		}

		user.Balance -= amount
		if err := m.users.UpdateBalance(txCtx, userID, user.Balance); err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
		if err := m.ledger.Record(txCtx, &model.LedgerEntry{
			Type:        model.LedgerBet,
			Amount:      -amount,
			Description: "Slot bet",
			UserID:      userID,
			ActorID:     userID,
		}); err != nil {
			return fmt.Errorf("record bet entry: %w", err)
		}

		b := &model.Bet{
			ID:      uuid.New(),
			UserID:  userID,
			RoundID: roundID,
			Amount:  amount,
		}
		if err := m.bets.Create(txCtx, b); err != nil {
			return fmt.Errorf("create bet: %w", err)
		}

		bet = b
		bettor = PublicUser(user)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Bet placed", "round", roundID, "user", bettor.Username, "amount", amount)
	m.broadcast.Broadcast(BetPlacedEvent{
		Type:    EventBetPlaced,
		RoundID: roundID,
		User:    bettor,
		Amount:  amount,
	})
	return bet, nil
}

// applyPayouts settles every winning bet of the round in one transaction.
// Balances are re-read inside the transaction just before crediting.
// Broadcasts go out only after the commit is durable.
func (m *Manager) applyPayouts(ctx context.Context, roundID uuid.UUID, outcome slot.Outcome) error {
	if outcome.PayoutMultiplier <= 0 {
		return nil
	}

	bets, err := m.bets.ForRound(ctx, roundID)
	if err != nil {
		return fmt.Errorf("load round bets: %w", err)
	}
	if len(bets) == 0 {
		return nil
	}

	type payout struct {
		user   UserInfo
		amount int64
	}
	var winners []payout

	err = m.tx.Do(ctx, func(txCtx context.Context) error {
		winners = winners[:0]
		for _, bet := range bets {
			win := bet.Amount * int64(outcome.PayoutMultiplier)
			if win <= 0 {
				continue
			}

			user, err := m.users.ByIDForUpdate(txCtx, bet.UserID)
			if err != nil {
				return fmt.Errorf("load winner: %w", err)
			}
			if user == nil {
				return fmt.Errorf("winner %d missing", bet.UserID)
			}

			if err := m.bets.SetPayout(txCtx, bet.ID, win); err != nil {
				return fmt.Errorf("set payout: %w", err)
			}
			user.Balance += win
			if err := m.users.UpdateBalance(txCtx, user.ID, user.Balance); err != nil {
				return fmt.Errorf("credit balance: %w", err)
			}
			if err := m.ledger.Record(txCtx, &model.LedgerEntry{
				Type:        model.LedgerPayout,
				Amount:      win,
				Description: fmt.Sprintf("Slot payout x%d on %s", outcome.PayoutMultiplier, outcome.WinningSymbol),
				UserID:      user.ID,
				ActorID:     user.ID,
			}); err != nil {
				return fmt.Errorf("record payout entry: %w", err)
			}

			winners = append(winners, payout{user: PublicUser(user), amount: win})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range winners {
		m.broadcast.NotifyBalance(w.user)
		m.broadcast.Broadcast(PayoutEvent{
			Type:       EventPayout,
			RoundID:    roundID,
			User:       w.user,
			Amount:     w.amount,
			Multiplier: outcome.PayoutMultiplier,
			Symbol:     outcome.WinningSymbol,
		})
	}
	return nil
}
