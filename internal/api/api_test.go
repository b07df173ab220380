package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelroom/reelroom/internal/auth"
	"github.com/reelroom/reelroom/internal/engine"
	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

type memUsers struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*model.User)}
}

func (s *memUsers) Create(ctx context.Context, user *model.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	u := *user
	u.ID = s.seq
	u.CreatedAt = time.Now()
	s.byID[u.ID] = &u
	return u.ID, nil
}

func (s *memUsers) ByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memUsers) ByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return s.ByID(ctx, id)
}

func (s *memUsers) ByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memUsers) UpdateBalance(ctx context.Context, id int64, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].Balance = balance
	return nil
}

func (s *memUsers) List(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type memItems struct {
	mu    sync.Mutex
	items []*model.Item
	owned map[int64]map[int64]int
}

func (s *memItems) List(ctx context.Context) ([]*model.Item, error) { return s.items, nil }

func (s *memItems) ByID(ctx context.Context, id int64) (*model.Item, error) {
	for _, i := range s.items {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, nil
}

func (s *memItems) Grant(ctx context.Context, userID, itemID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned == nil {
		s.owned = make(map[int64]map[int64]int)
	}
	if s.owned[userID] == nil {
		s.owned[userID] = make(map[int64]int)
	}
	s.owned[userID][itemID]++
	return s.owned[userID][itemID], nil
}

type memLedger struct {
	mu      sync.Mutex
	seq     int64
	entries []*model.LedgerEntry
}

func (s *memLedger) Record(ctx context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := *entry
	e.ID = s.seq
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, &e)
	return nil
}

func (s *memLedger) ForUser(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// passTx runs the closure directly; rollback semantics are covered by the
// engine tests against the same TxManager contract.
type passTx struct{}

func (passTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type recordingNotifier struct {
	mu    sync.Mutex
	users []engine.UserInfo
}

func (n *recordingNotifier) NotifyBalance(user engine.UserInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, user)
}

func (n *recordingNotifier) last() (engine.UserInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.users) == 0 {
		return engine.UserInfo{}, false
	}
	return n.users[len(n.users)-1], true
}

type apiFixture struct {
	server   *httptest.Server
	users    *memUsers
	items    *memItems
	ledger   *memLedger
	notifier *recordingNotifier
	tokens   *auth.Tokens
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	users := newMemUsers()
	items := &memItems{items: []*model.Item{
		{ID: 1, Code: "lucky-charm", Name: "Lucky Charm", Price: 300},
		{ID: 2, Code: "vip-card", Name: "VIP Card", Price: 750},
	}}
	ledger := &memLedger{}
	notifier := &recordingNotifier{}
	tokens := auth.NewTokens("test-secret", time.Hour)

	srv := New(Deps{
		Logger:          log.New(io.Discard),
		Users:           users,
		Items:           items,
		Ledger:          ledger,
		Tx:              passTx{},
		Tokens:          tokens,
		Notifier:        notifier,
		Paytable:        slot.DefaultSymbols(),
		StartingBalance: 1000,
	})

	server := httptest.NewServer(srv.Router())
	t.Cleanup(server.Close)

	return &apiFixture{
		server:   server,
		users:    users,
		items:    items,
		ledger:   ledger,
		notifier: notifier,
		tokens:   tokens,
	}
}

// seedUser creates an account directly and returns a valid token for it.
func (f *apiFixture) seedUser(t *testing.T, username string, role model.Role, balance int64) (int64, string) {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	id, err := f.users.Create(context.Background(), &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Balance:      balance,
	})
	require.NoError(t, err)

	token, err := f.tokens.Issue(&model.User{ID: id, Username: username, Role: role})
	require.NoError(t, err)
	return id, token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	status, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRegister(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/auth/register", "", credentialsRequest{
		Username: "alice", Password: "password123",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["token"])

	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, float64(1000), user["balance"])

	t.Run("duplicate username", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/auth/register", "", credentialsRequest{
			Username: "alice", Password: "password123",
		})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "username taken", body["error"])
	})

	t.Run("short credentials", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/auth/register", "", credentialsRequest{
			Username: "al", Password: "pw",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", model.RoleUser, 1000)

	status, body := f.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{
		Username: "alice", Password: "password123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	t.Run("wrong password", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{
			Username: "alice", Password: "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("unknown user", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/auth/login", "", credentialsRequest{
			Username: "nobody", Password: "password123",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestPaytable(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(t, http.MethodGet, "/game/paytable", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["symbols"], len(slot.DefaultSymbols()))
}

func TestShopItems(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(t, http.MethodGet, "/shop/items", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 2)
}

func TestPurchase(t *testing.T) {
	f := newAPIFixture(t)
	userID, token := f.seedUser(t, "alice", model.RoleUser, 1000)

	status, body := f.do(t, http.MethodPost, "/shop/purchase", token, purchaseRequest{ItemID: 1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(700), body["balance"])
	assert.Equal(t, float64(1), body["quantity"])

	u, err := f.users.ByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), u.Balance)

	entries, err := f.ledger.ForUser(context.Background(), userID, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerPurchase, entries[0].Type)
	assert.Equal(t, int64(-300), entries[0].Amount)

	pushed, ok := f.notifier.last()
	require.True(t, ok)
	assert.Equal(t, int64(700), pushed.Balance)

	t.Run("requires auth", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/shop/purchase", "", purchaseRequest{ItemID: 1})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("unknown item", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/shop/purchase", token, purchaseRequest{ItemID: 99})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/shop/purchase", token, purchaseRequest{ItemID: 2})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "insufficient balance", body["error"])
	})
}

func TestLedgerEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	userID, token := f.seedUser(t, "alice", model.RoleUser, 1000)

	require.NoError(t, f.ledger.Record(context.Background(), &model.LedgerEntry{
		Type: model.LedgerBet, Amount: -100, UserID: userID, ActorID: userID,
	}))

	status, body := f.do(t, http.MethodGet, "/me/ledger", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["entries"], 1)
}

func TestAdminEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	userID, userToken := f.seedUser(t, "alice", model.RoleUser, 1000)
	adminID, adminToken := f.seedUser(t, "boss", model.RoleAdmin, 0)

	t.Run("forbidden for players", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/admin/users", userToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("list users", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/admin/users", adminToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["users"], 2)
	})

	t.Run("credit", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/admin/credit", adminToken, creditRequest{
			UserID: userID, Amount: 500,
		})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1500), body["user"].(map[string]any)["balance"])

		entries, err := f.ledger.ForUser(context.Background(), userID, 100)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, model.LedgerCredit, entries[0].Type)
		assert.Equal(t, int64(500), entries[0].Amount)
		assert.Equal(t, adminID, entries[0].ActorID)

		pushed, ok := f.notifier.last()
		require.True(t, ok)
		assert.Equal(t, int64(1500), pushed.Balance)
	})

	t.Run("credit missing user", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/admin/credit", adminToken, creditRequest{
			UserID: 99, Amount: 500,
		})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("credit non-positive amount", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/admin/credit", adminToken, creditRequest{
			UserID: userID, Amount: 0,
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
