package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djassa/internal/assistant"
	"djassa/internal/auth"
	"djassa/internal/cache"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/services"
	"djassa/internal/storage"
)

type testEnv struct {
	srv  *Server
	repo *storage.SQLiteRepository
}

func newTestEnv(t *testing.T, staticDir string, authLimit int) testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "djassa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	responses := cache.NewLRUCache[any](100, time.Minute)
	ledger := services.NewLedgerService(repo, nil, responses)
	reports := services.NewReportService(repo, responses)

	limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: 10, Window: time.Minute})
	t.Cleanup(limiter.Stop)
	detector, err := assistant.NewIntentDetector(nil)
	require.NoError(t, err)
	recorder := assistant.NewAutoRecorder(ledger, repo, limiter, 0.8)

	srv := NewServer(Config{Addr: ":0", StaticDir: staticDir, AuthRateLimit: authLimit, APIRateLimit: 1000}, Services{
		Auth:      services.NewAuthService(repo, auth.NewIssuer("test-secret", time.Hour), responses, services.AuthConfig{}),
		Ledger:    ledger,
		Reports:   reports,
		Assistant: assistant.New(nil, repo, reports, detector, recorder),
		Ready:     repo.Ping,
	})
	t.Cleanup(func() {
		srv.authLimiter.Stop()
		srv.apiLimiter.Stop()
	})
	return testEnv{srv: srv, repo: repo}
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (e testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	if out != nil && rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

func (e testEnv) signup(t *testing.T, phone string) sessionView {
	t.Helper()
	var session sessionView
	code := e.do(t, http.MethodPost, "/api/auth/signup", "", signupRequest{
		ShopName: "Boutique Awa", Phone: phone, PIN: "1234", PINConfirm: "1234",
	}, &session)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, session.Token)
	return session
}

type errorPayload struct {
	Error string `json:"error"`
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, "", 5)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"assistant_enabled":false`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestSignupLoginFlow(t *testing.T) {
	env := newTestEnv(t, "", 50)
	session := env.signup(t, "0700000001")
	assert.Equal(t, "Boutique Awa", session.ShopName)
	assert.Equal(t, "free", string(session.Plan))

	var errBody errorPayload
	code := env.do(t, http.MethodPost, "/api/auth/signup", "", signupRequest{
		ShopName: "Autre", Phone: "0700000001", PIN: "1234", PINConfirm: "1234",
	}, &errBody)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Ce numéro de téléphone est déjà enregistré", errBody.Error)

	code = env.do(t, http.MethodPost, "/api/auth/signup", "", signupRequest{
		ShopName: "Autre", Phone: "0700000002", PIN: "1234", PINConfirm: "4321",
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)

	var login sessionView
	code = env.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Phone: "0700000001", PIN: "1234"}, &login)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.ShopID, login.ShopID)

	code = env.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Phone: "0700000001", PIN: "0000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code = env.do(t, http.MethodPost, "/api/auth/verify-pin", login.Token, map[string]string{"pin": "9999"}, &errBody)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Code PIN incorrect", errBody.Error)

	code = env.do(t, http.MethodPost, "/api/auth/verify-pin", login.Token, map[string]string{"pin": "1234"}, nil)
	assert.Equal(t, http.StatusOK, code)

	code = env.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil, nil)
	assert.Equal(t, http.StatusOK, code)

	// The revoked token is rejected, the first session still works.
	code = env.do(t, http.MethodGet, "/api/dashboard", login.Token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code = env.do(t, http.MethodGet, "/api/dashboard", session.Token, nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, "", 5)

	var errBody errorPayload
	code := env.do(t, http.MethodGet, "/api/products", "", nil, &errBody)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authentification requise", errBody.Error)

	code = env.do(t, http.MethodGet, "/api/products", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code = env.do(t, http.MethodGet, "/api/unknown", "", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProductsAndSales(t *testing.T) {
	env := newTestEnv(t, "", 5)
	token := env.signup(t, "0700000010").Token

	var product productView
	code := env.do(t, http.MethodPost, "/api/products", token, createProductRequest{
		Name: "Riz 5kg", UnitPrice: 3500, Stock: 10,
	}, &product)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 5, product.AlertThreshold)

	var errBody errorPayload
	code = env.do(t, http.MethodPost, "/api/products", token, createProductRequest{
		Name: "Riz 5kg", UnitPrice: 3500,
	}, &errBody)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Un produit avec ce nom existe déjà", errBody.Error)

	code = env.do(t, http.MethodPost, "/api/products", token, createProductRequest{Name: "Sel", UnitPrice: 50}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var sale saleView
	code = env.do(t, http.MethodPost, "/api/sales", token, createSaleRequest{ProductID: product.ID, Quantity: 3}, &sale)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(10500), sale.Total)
	assert.Equal(t, "Riz 5kg", sale.Product.Name)

	code = env.do(t, http.MethodPost, "/api/sales", token, createSaleRequest{ProductID: product.ID, Quantity: 8}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Stock insuffisant", errBody.Error)

	code = env.do(t, http.MethodPost, "/api/sales", token, createSaleRequest{ProductID: "missing", Quantity: 1}, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Produit non trouvé", errBody.Error)

	var sales page[saleView]
	code = env.do(t, http.MethodGet, "/api/sales?limit=1", token, nil, &sales)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, sales.Total)
	assert.Len(t, sales.Items, 1)
	assert.False(t, sales.HasNext)

	code = env.do(t, http.MethodGet, "/api/sales?limit=500", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// Stock adjustment through the query string, then through the body.
	code = env.do(t, http.MethodPatch, "/api/products/"+product.ID+"/stock?adjustment=5", token, nil, &product)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12, product.Stock)

	code = env.do(t, http.MethodPatch, "/api/products/"+product.ID+"/stock", token, map[string]int{"adjustment": -20}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.do(t, http.MethodPatch, "/api/products/"+product.ID+"/stock", token, map[string]int{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.do(t, http.MethodDelete, "/api/sales/"+sale.ID, token, nil, nil)
	require.Equal(t, http.StatusOK, code)

	var products []productView
	code = env.do(t, http.MethodGet, "/api/products", token, nil, &products)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, products, 1)
	assert.Equal(t, 15, products[0].Stock)

	code = env.do(t, http.MethodDelete, "/api/sales/"+sale.ID, token, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Vente non trouvée", errBody.Error)
}

func TestShopsAreIsolated(t *testing.T) {
	env := newTestEnv(t, "", 5)
	owner := env.signup(t, "0700000020").Token
	other := env.signup(t, "0700000021").Token

	var product productView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/products", owner,
		createProductRequest{Name: "Savon", UnitPrice: 250, Stock: 4}, &product))

	code := env.do(t, http.MethodDelete, "/api/products/"+product.ID, other, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	var products []productView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/products", other, nil, &products))
	assert.Empty(t, products)
}

func TestExpensesAndCategories(t *testing.T) {
	env := newTestEnv(t, "", 5)
	token := env.signup(t, "0700000030").Token

	var expense expenseView
	code := env.do(t, http.MethodPost, "/api/expenses", token, createExpenseRequest{Category: "Transport", Amount: 1200}, &expense)
	require.Equal(t, http.StatusCreated, code)

	code = env.do(t, http.MethodPost, "/api/expenses", token, createExpenseRequest{Category: "Transport", Amount: 50}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var frequent []frequentExpenseView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/expenses/frequent", token, nil, &frequent))
	require.Len(t, frequent, 1)
	assert.Equal(t, int64(1000), frequent[0].Amount)

	var category categoryView
	code = env.do(t, http.MethodPost, "/api/expenses/categories", token, map[string]string{"name": "Loyer", "icon": "🏠"}, &category)
	require.Equal(t, http.StatusCreated, code)

	var errBody errorPayload
	code = env.do(t, http.MethodPost, "/api/expenses/categories", token, map[string]string{"name": "Loyer"}, &errBody)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Cette catégorie existe déjà", errBody.Error)

	var expenses page[expenseView]
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/expenses", token, nil, &expenses))
	assert.Equal(t, 1, expenses.Total)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/expenses/"+expense.ID, token, nil, nil))
	code = env.do(t, http.MethodDelete, "/api/expenses/"+expense.ID, token, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Dépense non trouvée", errBody.Error)
}

func TestDebtsAndPayments(t *testing.T) {
	env := newTestEnv(t, "", 5)
	token := env.signup(t, "0700000040").Token

	var debt debtView
	code := env.do(t, http.MethodPost, "/api/debts", token, createDebtRequest{CustomerName: "Koffi", Amount: 5000}, &debt)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "open", string(debt.Status))

	var errBody errorPayload
	code = env.do(t, http.MethodPost, "/api/debts/"+debt.ID+"/payments", token, payDebtRequest{Amount: 6000}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Montant supérieur à la dette restante", errBody.Error)

	var paid paymentResponse
	code = env.do(t, http.MethodPost, "/api/debts/"+debt.ID+"/payments", token, payDebtRequest{Amount: 2000}, &paid)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(3000), paid.Debt.RemainingAmount)

	code = env.do(t, http.MethodPost, "/api/debts/"+debt.ID+"/payments", token, payDebtRequest{Amount: 3000}, &paid)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "settled", string(paid.Debt.Status))

	var open, settled []debtView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/debts", token, nil, &open))
	assert.Empty(t, open)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/debts?status=settled", token, nil, &settled))
	assert.Len(t, settled, 1)

	code = env.do(t, http.MethodGet, "/api/debts?status=paid", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.do(t, http.MethodPost, "/api/debts/unknown/payments", token, payDebtRequest{Amount: 100}, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Dette non trouvée", errBody.Error)
}

func TestGoalsAndReports(t *testing.T) {
	env := newTestEnv(t, "", 5)
	token := env.signup(t, "0700000050").Token

	today := time.Now().UTC()
	var goal goalView
	code := env.do(t, http.MethodPost, "/api/goals", token, createGoalRequest{
		Type:         "hebdomadaire",
		TargetAmount: 50000,
		StartDate:    today.AddDate(0, 0, -1).Format("2006-01-02"),
		EndDate:      today.AddDate(0, 0, 6).Format("2006-01-02"),
	}, &goal)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "weekly", string(goal.Type))
	assert.True(t, goal.Active)

	code = env.do(t, http.MethodPost, "/api/goals", token, createGoalRequest{
		Type: "daily", TargetAmount: 50000, StartDate: "hier", EndDate: "demain",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var dash services.Dashboard
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/dashboard", token, nil, &dash))
	assert.Len(t, dash.Last7Days, 7)
	require.NotNil(t, dash.ActiveGoal)

	var profit services.NetProfit
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/reports/net-profit?period=week", token, nil, &profit))
	assert.Zero(t, profit.Net)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/reports/sales?period=week", token, nil, nil))
	code = env.do(t, http.MethodGet, "/api/reports/unknown", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAssistantWithoutModel(t *testing.T) {
	env := newTestEnv(t, "", 5)
	token := env.signup(t, "0700000060").Token

	var chat assistant.ChatReply
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/assistant/chat", token, chatRequest{Message: "Bonjour"}, &chat))
	assert.False(t, chat.Success)
	assert.Contains(t, chat.Error, "GOOGLE_API_KEY")

	var history []chatMessageView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/assistant/history", token, nil, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "user", history[0].Role)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/assistant/history", token, nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/assistant/history", token, nil, &history))
	assert.Empty(t, history)

	var reply assistant.MessageReply
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/assistant/message", token,
		messageRequest{Message: "Combien j'ai vendu ?"}, &reply))
	assert.Contains(t, reply.Response, "configuration")

	var voice assistant.VoiceResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/assistant/voice", token,
		voiceRequest{Transcript: "trois savons"}, &voice))
	assert.False(t, voice.Success)

	code := env.do(t, http.MethodPost, "/api/assistant/voice", token, voiceRequest{Transcript: strings.Repeat("a", 501)}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, "", 2)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"phone":"0700000099","pin":"1234"}`))
		req.RemoteAddr = ip + ":4000"
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusUnauthorized, send("203.0.113.5").Code)
	assert.Equal(t, http.StatusUnauthorized, send("203.0.113.5").Code)
	rr := send("203.0.113.5")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), `"error"`)

	assert.Equal(t, http.StatusUnauthorized, send("203.0.113.6").Code)
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>djassa</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))
	env := newTestEnv(t, dir, 5)

	serve := func(method, path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
		return rr
	}

	rr := serve(http.MethodGet, "/ventes/nouvelle")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "djassa")
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))

	rr = serve(http.MethodGet, "/assets/app.js")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")

	rr = serve(http.MethodPost, "/ventes")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(http.MethodGet, "/.env")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
