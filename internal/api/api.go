// Package api is the HTTP surface around the game: account registration and
// login, the shop, the paytable, and the admin endpoints. Gameplay itself
// happens over the websocket; everything here is request/response glue.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/reelroom/reelroom/internal/auth"
	"github.com/reelroom/reelroom/internal/engine"
	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
	"github.com/reelroom/reelroom/internal/store"
)

// BalanceNotifier pushes an authoritative balance to a user's live
// websocket sessions. Implemented by the hub.
type BalanceNotifier interface {
	NotifyBalance(user engine.UserInfo)
}

// Deps wires the server's collaborators.
type Deps struct {
	Logger          *log.Logger
	Users           store.UserStore
	Items           store.ItemStore
	Ledger          store.LedgerStore
	Tx              engine.TxManager
	Tokens          *auth.Tokens
	Notifier        BalanceNotifier
	Paytable        []slot.Symbol
	StartingBalance int64
	WS              http.HandlerFunc
}

// Server holds the HTTP handlers. Build the router with Router().
type Server struct {
	logger          *log.Logger
	users           store.UserStore
	items           store.ItemStore
	ledger          store.LedgerStore
	tx              engine.TxManager
	tokens          *auth.Tokens
	notifier        BalanceNotifier
	paytable        []slot.Symbol
	startingBalance int64
	ws              http.HandlerFunc
}

func New(deps Deps) *Server {
	return &Server{
		logger:          deps.Logger.WithPrefix("api"),
		users:           deps.Users,
		items:           deps.Items,
		ledger:          deps.Ledger,
		tx:              deps.Tx,
		tokens:          deps.Tokens,
		notifier:        deps.Notifier,
		paytable:        deps.Paytable,
		startingBalance: deps.StartingBalance,
		ws:              deps.WS,
	}
}

// Router assembles the route tree with CORS for browser clients.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/game/paytable", s.handlePaytable)
	r.Get("/shop/items", s.handleListItems)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/shop/purchase", s.handlePurchase)
		r.Get("/me/ledger", s.handleLedger)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth, s.requireAdmin)
		r.Get("/admin/users", s.handleListUsers)
		r.Post("/admin/credit", s.handleCredit)
	})

	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePaytable(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"symbols": s.paytable})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string          `json:"token"`
	User  engine.UserInfo `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 6 {
		s.respondError(w, http.StatusBadRequest, "username or password too short")
		return
	}

	existing, err := s.users.ByUsername(r.Context(), req.Username)
	if err != nil {
		s.internalError(w, "check username", err)
		return
	}
	if existing != nil {
		s.respondError(w, http.StatusConflict, "username taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Balance:      s.startingBalance,
	}
	id, err := s.users.Create(r.Context(), user)
	if err != nil {
		s.internalError(w, "create user", err)
		return
	}
	user.ID = id

	s.logger.Info("User registered", "user", user.Username)
	s.issueSession(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := s.users.ByUsername(r.Context(), req.Username)
	if err != nil {
		s.internalError(w, "load user", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueSession(w, http.StatusOK, user)
}

func (s *Server) issueSession(w http.ResponseWriter, status int, user *model.User) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.internalError(w, "issue token", err)
		return
	}
	s.respond(w, status, sessionResponse{Token: token, User: engine.PublicUser(user)})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.items.List(r.Context())
	if err != nil {
		s.internalError(w, "list items", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"items": itemViews(items)})
}

type purchaseRequest struct {
	ItemID int64 `json:"itemId"`
}

type purchaseResponse struct {
	Item     itemView `json:"item"`
	Quantity int      `json:"quantity"`
	Balance  int64    `json:"balance"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	userID := sessionUserID(r.Context())

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	var (
		buyer    engine.UserInfo
		item     *model.Item
		quantity int
	)
	err := s.tx.Do(r.Context(), func(ctx context.Context) error {
		var err error
		item, err = s.items.ByID(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return errItemNotFound
		}

		user, err := s.users.ByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return errUserNotFound
		}
		if user.Balance < item.Price {
			return errInsufficientFunds
		}

		user.Balance -= item.Price
		if err := s.users.UpdateBalance(ctx, user.ID, user.Balance); err != nil {
			return err
		}
		if err := s.ledger.Record(ctx, &model.LedgerEntry{
			Type:        model.LedgerPurchase,
			Amount:      -item.Price,
			Description: "Shop purchase: " + item.Name,
			UserID:      user.ID,
			ActorID:     user.ID,
		}); err != nil {
			return err
		}
		quantity, err = s.items.Grant(ctx, user.ID, item.ID)
		if err != nil {
			return err
		}

		buyer = engine.PublicUser(user)
		return nil
	})
	switch {
	case errors.Is(err, errItemNotFound):
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, errInsufficientFunds):
		s.respondError(w, http.StatusBadRequest, "insufficient balance")
		return
	case errors.Is(err, errUserNotFound):
		s.respondError(w, http.StatusUnauthorized, "unknown user")
		return
	case err != nil:
		s.internalError(w, "purchase", err)
		return
	}

	s.logger.Info("Item purchased", "user", buyer.Username, "item", item.Code)
	s.notifier.NotifyBalance(buyer)
	s.respond(w, http.StatusOK, purchaseResponse{
		Item:     newItemView(item),
		Quantity: quantity,
		Balance:  buyer.Balance,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.ForUser(r.Context(), sessionUserID(r.Context()), 100)
	if err != nil {
		s.internalError(w, "load ledger", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"entries": ledgerViews(entries)})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.internalError(w, "list users", err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	s.respond(w, http.StatusOK, map[string]any{"users": views})
}

type creditRequest struct {
	UserID int64 `json:"userId"`
	Amount int64 `json:"amount"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	adminID := sessionUserID(r.Context())

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Amount <= 0 {
		s.respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	var credited engine.UserInfo
	err := s.tx.Do(r.Context(), func(ctx context.Context) error {
		user, err := s.users.ByIDForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return errUserNotFound
		}

		user.Balance += req.Amount
		if err := s.users.UpdateBalance(ctx, user.ID, user.Balance); err != nil {
			return err
		}
		if err := s.ledger.Record(ctx, &model.LedgerEntry{
			Type:        model.LedgerCredit,
			Amount:      req.Amount,
			Description: "Admin credit",
			UserID:      user.ID,
			ActorID:     adminID,
		}); err != nil {
			return err
		}

		credited = engine.PublicUser(user)
		return nil
	})
	switch {
	case errors.Is(err, errUserNotFound):
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		s.internalError(w, "credit", err)
		return
	}

	s.logger.Info("Balance credited", "admin", adminID, "user", credited.Username, "amount", req.Amount)
	s.notifier.NotifyBalance(credited)
	s.respond(w, http.StatusOK, map[string]any{"user": credited})
}
