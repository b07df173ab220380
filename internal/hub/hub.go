// Package hub owns the websocket side of the server: session registry,
// authenticated upgrades, event fan-out to every live connection, and the
// PLACE_BET inbound action.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/reelroom/reelroom/internal/engine"
	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
	"github.com/reelroom/reelroom/internal/store"
)

// Engine is the slice of the round manager the hub drives.
type Engine interface {
	PlaceBet(ctx context.Context, userID int64, amount int64) (*model.Bet, error)
	State() model.RoundState
	CurrentRoundID() (uuid.UUID, bool)
}

// TokenVerifier checks the ?token= credential presented at upgrade time.
type TokenVerifier interface {
	Verify(token string) (int64, model.Role, error)
}

// Hub is the websocket session registry and broadcaster. It implements
// engine.Broadcaster and engine.Presence.
type Hub struct {
	upgrader   websocket.Upgrader
	conns      map[*Conn]bool
	register   chan *Conn
	unregister chan *Conn
	logger     *log.Logger
	verifier   TokenVerifier
	users      store.UserStore
	paytable   []slot.Symbol
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	engine     Engine
}

func New(logger *log.Logger, verifier TokenVerifier, users store.UserStore, paytable []slot.Symbol) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The token is the credential; origin is not.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:      make(map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		logger:     logger.WithPrefix("hub"),
		verifier:   verifier,
		users:      users,
		paytable:   paytable,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetEngine wires the round manager in after construction; the manager needs
// the hub first, as its broadcaster.
func (h *Hub) SetEngine(e Engine) {
	h.engine = e
}

// Start launches the registry loop.
func (h *Hub) Start() {
	go h.run()
}

// Stop closes every live session.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = true
			total := len(h.conns)
			h.mu.Unlock()
			h.logger.Info("Client connected", "user", conn.User().Username, "total", total)

			conn.sendJSON(h.welcome(conn))
			h.broadcastRoster()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[conn]; ok {
				delete(h.conns, conn)
				_ = conn.Close()
			}
			total := len(h.conns)
			h.mu.Unlock()
			h.logger.Info("Client disconnected", "user", conn.User().Username, "total", total)

			h.broadcastRoster()

		case <-h.ctx.Done():
			return
		}
	}
}

// HandleWS upgrades an authenticated request to a websocket session.
// The token travels as a query parameter because browsers cannot set
// headers on websocket dials.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Debug("Rejected upgrade", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.ByID(r.Context(), userID)
	if err != nil || user == nil {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := newConn(ws, h, engine.PublicUser(user))
	h.register <- conn
	conn.Start()

	go func() {
		select {
		case <-conn.ctx.Done():
		case <-h.ctx.Done():
			return
		}
		select {
		case h.unregister <- conn:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) welcome(conn *Conn) WelcomeEvent {
	ev := WelcomeEvent{
		Type:     EventWelcome,
		User:     conn.User(),
		State:    model.RoundIdle,
		Paytable: h.paytable,
	}
	if h.engine != nil {
		ev.State = h.engine.State()
		if id, ok := h.engine.CurrentRoundID(); ok {
			ev.RoundID = id.String()
		}
	}
	return ev
}

// Broadcast marshals the event once and fans it out to every live session.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for conn := range h.conns {
		if err := conn.Send(data); err == nil {
			count++
		}
	}
	h.logger.Debug("Broadcasted event", "recipients", count)
}

// NotifyBalance pushes the authoritative balance to the affected user's
// sessions and refreshes the roster everyone else sees.
func (h *Hub) NotifyBalance(user engine.UserInfo) {
	h.mu.RLock()
	for conn := range h.conns {
		if conn.UserID() == user.ID {
			conn.setBalance(user.Balance)
			conn.sendJSON(UserBalanceEvent{Type: EventUserBalance, User: user})
		}
	}
	h.mu.RUnlock()

	h.broadcastRoster()
}

// HasActiveParticipants reports whether anyone is connected. Every session
// in the registry passed authentication.
func (h *Hub) HasActiveParticipants() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns) > 0
}

// OnlineUsers returns the deduplicated roster of connected users.
func (h *Hub) OnlineUsers() []engine.UserInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[int64]bool, len(h.conns))
	users := make([]engine.UserInfo, 0, len(h.conns))
	for conn := range h.conns {
		u := conn.User()
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	return users
}

func (h *Hub) broadcastRoster() {
	users := h.OnlineUsers()
	h.Broadcast(OnlineUsersEvent{Type: EventOnlineUsers, Users: users, Count: len(users)})
}

// placeBet forwards a PLACE_BET to the engine and answers the requesting
// session only; the engine broadcasts BET_PLACED to everyone on success.
func (h *Hub) placeBet(conn *Conn, amount int64) {
	if h.engine == nil {
		conn.sendError("game unavailable")
		return
	}

	bet, err := h.engine.PlaceBet(conn.ctx, conn.UserID(), amount)
	if err != nil {
		conn.sendError(rejectionMessage(err))
		return
	}

	conn.setBalance(conn.User().Balance - amount)
	conn.sendJSON(BetAcceptedEvent{
		Type:    EventBetAccepted,
		BetID:   bet.ID,
		RoundID: bet.RoundID,
		Amount:  bet.Amount,
	})
	h.broadcastRoster()
}

// rejectionMessage maps engine errors to client-safe text. Validation
// sentinels pass through verbatim; anything else stays generic.
func rejectionMessage(err error) string {
	for _, sentinel := range []error{
		engine.ErrBettingClosed,
		engine.ErrInvalidAmount,
		engine.ErrInsufficientBalance,
		engine.ErrDuplicateBet,
		engine.ErrUnknownUser,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "bet failed"
}
