package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keyshop/entity"
	"keyshop/impl/core"
	"keyshop/internal/database/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

type envelope struct {
	Data          json.RawMessage `json:"data"`
	Success       bool            `json:"success"`
	StatusMessage string          `json:"status_message"`
}

func newTestServer(t *testing.T) (*apiClient, *core.Core) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	c := core.New(store, log)
	require.NoError(t, c.EnsureAdmin(context.Background(), &entity.NewAccount{
		Handle:     "admin",
		Credential: "secret",
	}))
	_, err := c.CreateAccount(context.Background(), &entity.NewAccount{
		Handle:     "buyer",
		Credential: "pass",
		Balance:    decimal.RequireFromString("5"),
	})
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	server := httptest.NewServer(NewRouter(log, c, metrics))
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server}, c
}

func (a *apiClient) do(method, path, user, pass string, body any) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") != "" && resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&env)
	}
	return resp.StatusCode, env
}

func (a *apiClient) admin(method, path string, body any) (int, envelope) {
	return a.do(method, path, "admin", "secret", body)
}

func TestAuthenticationRequired(t *testing.T) {
	api, _ := newTestServer(t)

	status, env := api.do(http.MethodGet, "/v1/accounts", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = api.do(http.MethodGet, "/v1/accounts", "admin", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// valid credentials of a non-administrator
	status, _ = api.do(http.MethodGet, "/v1/accounts", "buyer", "pass", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = api.admin(http.MethodGet, "/v1/accounts", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	var list []entity.Account
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
}

func TestAccountsCreateAndAdjust(t *testing.T) {
	api, _ := newTestServer(t)

	status, env := api.admin(http.MethodPost, "/v1/accounts", map[string]any{
		"handle":     "carol",
		"credential": "pw",
		"balance":    "20",
	})
	require.Equal(t, http.StatusCreated, status, env.StatusMessage)
	var created entity.Account
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "carol", created.Handle)
	assert.False(t, created.IsAdmin)

	status, _ = api.admin(http.MethodPost, "/v1/accounts", map[string]any{
		"handle":     "CAROL",
		"credential": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.admin(http.MethodPost, "/v1/accounts", map[string]any{"handle": "dave"})
	assert.Equal(t, http.StatusBadRequest, status)

	path := "/v1/accounts/" + jsonId(created.Id) + "/balance"
	status, env = api.admin(http.MethodPost, path, map[string]any{"delta": "-5.5"})
	require.Equal(t, http.StatusOK, status, env.StatusMessage)
	var adjusted entity.Account
	require.NoError(t, json.Unmarshal(env.Data, &adjusted))
	assert.True(t, adjusted.Balance.Equal(decimal.RequireFromString("14.5")))

	status, _ = api.admin(http.MethodPost, path, map[string]any{"delta": "-100"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = api.admin(http.MethodPost, "/v1/accounts/999/balance", map[string]any{"delta": "1"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.admin(http.MethodPost, "/v1/accounts/abc/balance", map[string]any{"delta": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProductsAndKeys(t *testing.T) {
	api, _ := newTestServer(t)

	status, env := api.admin(http.MethodPost, "/v1/products", map[string]any{
		"name":     "Widget",
		"category": "Tools",
		"price":    "10.00",
	})
	require.Equal(t, http.StatusCreated, status, env.StatusMessage)
	var product entity.Product
	require.NoError(t, json.Unmarshal(env.Data, &product))
	require.NotZero(t, product.Id)

	status, _ = api.admin(http.MethodPost, "/v1/products", map[string]any{
		"name":     "Free",
		"category": "Tools",
		"price":    "0",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	keysPath := "/v1/products/" + jsonId(product.Id) + "/keys"
	status, env = api.admin(http.MethodPost, keysPath, map[string]any{
		"licenses": "AAA-1\n\n  BBB-2  \nAAA-1\n",
	})
	require.Equal(t, http.StatusOK, status, env.StatusMessage)
	var loaded entity.KeyLoadResult
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	assert.Equal(t, 2, loaded.Added)
	assert.Equal(t, []string{"AAA-1"}, loaded.Duplicates)

	status, env = api.admin(http.MethodPost, keysPath, map[string]any{"licenses": "BBB-2\nCCC-3"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	assert.Equal(t, 1, loaded.Added)
	assert.Equal(t, []string{"BBB-2"}, loaded.Duplicates)

	status, env = api.admin(http.MethodGet, keysPath, nil)
	require.Equal(t, http.StatusOK, status)
	var keys []entity.Key
	require.NoError(t, json.Unmarshal(env.Data, &keys))
	assert.Len(t, keys, 3)

	status, env = api.admin(http.MethodGet, "/v1/products", nil)
	require.Equal(t, http.StatusOK, status)
	var stock []entity.ProductStock
	require.NoError(t, json.Unmarshal(env.Data, &stock))
	require.Len(t, stock, 1)
	assert.Equal(t, 3, stock[0].Available)

	productPath := "/v1/products/" + jsonId(product.Id)
	status, env = api.admin(http.MethodPut, productPath, map[string]any{
		"name":     "Widget Pro",
		"category": "Tools",
		"price":    "12.50",
	})
	require.Equal(t, http.StatusOK, status, env.StatusMessage)
	var updated entity.Product
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Widget Pro", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("12.5")))

	status, _ = api.admin(http.MethodDelete, productPath, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.admin(http.MethodDelete, productPath, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.admin(http.MethodGet, keysPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutingErrorsAndMetrics(t *testing.T) {
	api, _ := newTestServer(t)

	status, env := api.do(http.MethodGet, "/nowhere", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)

	resp, err := http.Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# metrics")
}

func jsonId(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func TestInputBeyondStorageLimitsIsRejected(t *testing.T) {
	api, _ := newTestServer(t)

	status, env := api.admin(http.MethodPost, "/v1/accounts", map[string]any{
		"handle":     "eve",
		"credential": strings.Repeat("p", 80),
	})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	status, env = api.admin(http.MethodPost, "/v1/accounts", map[string]any{
		"handle":     "eve",
		"credential": "pw",
		"balance":    "10000000000",
	})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	status, env = api.admin(http.MethodPost, "/v1/products", map[string]any{
		"name":     "Gold",
		"category": "Tools",
		"price":    "10000000000.00",
	})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	status, env = api.admin(http.MethodPost, "/v1/products", map[string]any{
		"name":     "Widget",
		"category": "Tools",
		"price":    "10",
	})
	require.Equal(t, http.StatusCreated, status, env.StatusMessage)
	var product entity.Product
	require.NoError(t, json.Unmarshal(env.Data, &product))

	status, env = api.admin(http.MethodPost, "/v1/products/"+jsonId(product.Id)+"/keys", map[string]any{
		"licenses": "SHORT-1\n" + strings.Repeat("K", entity.MaxLicenseLen+1),
	})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	status, env = api.admin(http.MethodGet, "/v1/products/"+jsonId(product.Id)+"/keys", nil)
	require.Equal(t, http.StatusOK, status)
	var keys []entity.Key
	require.NoError(t, json.Unmarshal(env.Data, &keys))
	assert.Empty(t, keys, "a rejected batch stores nothing")
}

func TestBalanceDeltaPrecision(t *testing.T) {
	api, c := newTestServer(t)
	accounts, err := c.Accounts(context.Background())
	require.NoError(t, err)
	var buyer *entity.Account
	for _, a := range accounts {
		if a.Handle == "buyer" {
			buyer = a
		}
	}
	require.NotNil(t, buyer)
	path := "/v1/accounts/" + jsonId(buyer.Id) + "/balance"

	status, env := api.admin(http.MethodPost, path, map[string]any{"delta": "0.001"})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	status, env = api.admin(http.MethodPost, path, map[string]any{"delta": "99999999999"})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	// within limits per request, but the sum would not fit the column
	status, env = api.admin(http.MethodPost, path, map[string]any{"delta": "9999999999.99"})
	assert.Equal(t, http.StatusBadRequest, status, env.StatusMessage)

	account, err := c.Account(context.Background(), buyer.Id)
	require.NoError(t, err)
	assert.Equal(t, "5.00", entity.FormatMoney(account.Balance))
}

// failingCore fails account creation as an unreachable store would.
type failingCore struct {
	*core.Core
}

func (failingCore) CreateAccount(_ context.Context, _ *entity.NewAccount) (*entity.Account, error) {
	return nil, fmt.Errorf("%w: connection refused", entity.ErrStorageUnavailable)
}

func TestStorageFailureIsLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := core.New(memory.New(), log)
	require.NoError(t, c.EnsureAdmin(context.Background(), &entity.NewAccount{Handle: "admin", Credential: "secret"}))

	server := httptest.NewServer(NewRouter(log, failingCore{c}, nil))
	t.Cleanup(server.Close)
	client := &apiClient{t: t, server: server}

	status, _ := client.admin(http.MethodPost, "/v1/accounts", map[string]any{"handle": "x", "credential": "y"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, buf.String(), `level=ERROR msg="create account"`)

	buf.Reset()
	status, _ = client.admin(http.MethodPost, "/v1/accounts/999/balance", map[string]any{"delta": "1"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, buf.String(), `level=WARN msg="adjust balance"`)
}
