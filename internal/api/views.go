package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/reelroom/reelroom/internal/model"
)

// userView is the admin-facing user record; PasswordHash never leaves the
// server.
type userView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	Balance   int64      `json:"balance"`
	CreatedAt time.Time  `json:"createdAt"`
}

func newUserView(u *model.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
	}
}

type itemView struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

func newItemView(i *model.Item) itemView {
	return itemView{
		ID:          i.ID,
		Code:        i.Code,
		Name:        i.Name,
		Description: i.Description,
		Price:       i.Price,
	}
}

func itemViews(items []*model.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, i := range items {
		views = append(views, newItemView(i))
	}
	return views
}

type ledgerView struct {
	ID          int64            `json:"id"`
	Type        model.LedgerType `json:"type"`
	Amount      int64            `json:"amount"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func ledgerViews(entries []*model.LedgerEntry) []ledgerView {
	views := make([]ledgerView, 0, len(entries))
	for _, e := range entries {
		views = append(views, ledgerView{
			ID:          e.ID,
			Type:        e.Type,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return views
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("Request failed", "op", what, "error", err)
	s.respondError(w, http.StatusInternalServerError, "internal error")
}
