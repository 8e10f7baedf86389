package http

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/log"
	"deals/internal/services"
	"deals/internal/storage/memory"
)

const (
	testUser     = "admin"
	testPassword = "correct horse battery"
)

type testEnv struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	cookie *http.Cookie
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.NewWithManagers("M1", "M2")
	authn := auth.New(store, "test-secret-0123456789", time.Hour)
	require.NoError(t, authn.EnsureUser(context.Background(), testUser, testPassword))

	o := Options{
		Deals:          services.NewDealService(store, nil),
		Reports:        services.NewReportService(store),
		Auth:           authn,
		Ready:          store.Ping,
		Logger:         log.New(log.Config{Level: slog.LevelError, Output: io.Discard}),
		LoginRateLimit: 100,
	}
	for _, fn := range opts {
		fn(&o)
	}
	srv, err := NewServer(":0", o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{t: t, srv: srv, store: store}
}

func (e *testEnv) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	r := httptest.NewRequest(method, target, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if e.cookie != nil {
		r.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	return rec
}

func (e *testEnv) login() {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/login", url.Values{"username": {testUser}, "password": {testPassword}})
	require.Equal(e.t, http.StatusSeeOther, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			e.cookie = c
		}
	}
	require.NotNil(e.t, e.cookie, "session cookie set")
}

func dealValues(stock, date, last, manager string, amounts map[string]string) url.Values {
	v := url.Values{
		"stock_number": {stock},
		"deal_date":    {date},
		"last_name":    {last},
		"manager":      {manager},
	}
	for k, a := range amounts {
		v.Set(k, a)
	}
	return v
}

// seedScenario creates deal A (January, M1, 800 profit) and deal B
// (February, M2, 200 profit) through the web form.
func (e *testEnv) seedScenario() {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/deals/new", dealValues("A", "2024-01-10", "Smith", "1", map[string]string{"reserve": "500", "vsc": "300"}))
	require.Equal(e.t, http.StatusSeeOther, rec.Code)
	rec = e.do(http.MethodPost, "/deals/new", dealValues("B", "2024-02-15", "Jones", "2", map[string]string{"reserve": "200"}))
	require.Equal(e.t, http.StatusSeeOther, rec.Code)
}

func TestUnauthenticatedPagesRedirectToLogin(t *testing.T) {
	e := newTestEnv(t)
	for _, target := range []string{"/", "/deals", "/deals/new", "/deals/1/edit", "/report", "/managers"} {
		rec := e.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusFound, rec.Code, target)
		assert.Equal(t, "/login?next="+url.QueryEscape(target), rec.Header().Get("Location"), target)
	}

	rec := e.do(http.MethodPost, "/report", url.Values{"export_csv": {"1"}})
	assert.Equal(t, http.StatusFound, rec.Code, "exports need a session too")
}

func TestUnauthenticatedAPIIs401(t *testing.T) {
	e := newTestEnv(t)
	for _, target := range []string{"/api/v1/deals", "/api/v1/report"} {
		rec := e.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	}
}

func TestForgedCookieRejected(t *testing.T) {
	e := newTestEnv(t)
	e.cookie = &http.Cookie{Name: auth.CookieName, Value: "not-a-token"}
	rec := e.do(http.MethodGet, "/deals", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/login?next=/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="/report"`)

	rec = e.do(http.MethodPost, "/login", url.Values{"username": {testUser}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter a correct username and password.")

	rec = e.do(http.MethodPost, "/login", url.Values{"username": {""}, "password": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(http.MethodPost, "/login", url.Values{"username": {testUser}, "password": {testPassword}, "next": {"/report"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/report", rec.Header().Get("Location"))
	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, auth.CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	rec = e.do(http.MethodPost, "/login", url.Values{"username": {testUser}, "password": {testPassword}, "next": {"https://evil.example/"}})
	assert.Equal(t, "/", rec.Header().Get("Location"), "external next is ignored")
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rec := e.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := rec.Result().Cookies()[0]
	assert.Equal(t, auth.CookieName, cleared.Name)
	assert.Negative(t, cleared.MaxAge)
}

func TestLoginRateLimit(t *testing.T) {
	e := newTestEnv(t, func(o *Options) { o.LoginRateLimit = 2 })
	bad := url.Values{"username": {testUser}, "password": {"wrong"}}

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/login", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/login", bad).Code)
	rec := e.do(http.MethodPost, "/login", bad)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestDealCRUD(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rec := e.do(http.MethodGet, "/deals/new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ">M1</option>")

	e.seedScenario()

	rec = e.do(http.MethodGet, "/deals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Smith")
	assert.Contains(t, rec.Body.String(), "Jones")
	assert.Contains(t, rec.Body.String(), "800.00")

	deals, err := e.store.ListDeals(context.Background(), "smith")
	require.NoError(t, err)
	require.Len(t, deals, 1)
	id := deals[0].ID
	assert.Equal(t, testUser, deals[0].UpdatedBy)

	rec = e.do(http.MethodGet, "/deals/"+itoa(id)+"/edit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="500.00"`)

	rec = e.do(http.MethodPost, "/deals/"+itoa(id)+"/edit",
		dealValues("A", "2024-01-10", "Smithers", "1", map[string]string{"reserve": "600"}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	updated, err := e.store.GetDeal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Smithers", updated.LastName)
	assert.True(t, updated.Reserve.Equal(decimal.NewFromInt(600)))
	assert.True(t, updated.VSC.IsZero(), "update replaces every attribute")

	rec = e.do(http.MethodGet, "/deals/"+itoa(id)+"/delete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Are you sure")

	rec = e.do(http.MethodPost, "/deals/"+itoa(id)+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	_, err = e.store.GetDeal(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDealListSearch(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.seedScenario()

	tests := []struct {
		q        string
		contains []string
		absent   []string
	}{
		{"", []string{"Smith", "Jones"}, nil},
		{"SMI", []string{"Smith"}, []string{"Jones"}},
		{"2024-02", []string{"Jones"}, []string{"Smith"}},
		{"zzz", []string{"No deals found."}, []string{"Smith", "Jones"}},
		{"smith ", []string{"No deals found."}, []string{"Smith", "Jones"}},
		{"   ", []string{"No deals found."}, []string{"Smith", "Jones"}},
	}
	for _, tt := range tests {
		rec := e.do(http.MethodGet, "/deals?q="+url.QueryEscape(tt.q), nil)
		require.Equal(t, http.StatusOK, rec.Code, tt.q)
		for _, s := range tt.contains {
			assert.Contains(t, rec.Body.String(), s, tt.q)
		}
		for _, s := range tt.absent {
			assert.NotContains(t, rec.Body.String(), s, tt.q)
		}
	}
}

func TestDealValidationRerendersWith422(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rec := e.do(http.MethodPost, "/deals/new", dealValues("", "2024-13-40", "Smith", "1", map[string]string{"reserve": "abc"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "This field is required.")
	assert.Contains(t, body, "Enter a valid date")
	assert.Contains(t, body, `value="Smith"`, "submitted values are kept")

	rec = e.do(http.MethodPost, "/deals/new", dealValues("A", "2024-01-10", "Smith", "99", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown manager")

	rec = e.do(http.MethodPost, "/deals/new", dealValues("A", "0001-01-01", "Smith", "1", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "year 1 is not a deal date")
	assert.Contains(t, rec.Body.String(), "from 1900 onwards")

	deals, err := e.store.ListDeals(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestMissingDealIs404(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/deals/999/edit"},
		{http.MethodPost, "/deals/999/edit"},
		{http.MethodGet, "/deals/999/delete"},
		{http.MethodPost, "/deals/999/delete"},
		{http.MethodGet, "/deals/abc/edit"},
	} {
		var form url.Values
		if tc.method == http.MethodPost {
			form = dealValues("", "", "", "", nil)
		}
		rec := e.do(tc.method, tc.target, form)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.target)
	}
}

func TestReportPage(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.seedScenario()

	rec := e.do(http.MethodGet, "/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Total profit", "no report before the form is submitted")

	rec = e.do(http.MethodPost, "/report", url.Values{"start_date": {"2024-01-01"}, "end_date": {"2024-01-31"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Total profit")
	assert.Contains(t, body, "800.00")
	assert.Contains(t, body, "<strong>1.00</strong>")
	assert.NotContains(t, body, "Jones")

	rec = e.do(http.MethodPost, "/report", url.Values{"start_date": {"not-a-date"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(http.MethodPost, "/report", url.Values{"end_date": {"0001-01-01"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "an out-of-range upper bound is rejected, not dropped")
	assert.NotContains(t, rec.Body.String(), "Total profit")
}

func TestReportCSVExport(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.seedScenario()

	rec := e.do(http.MethodPost, "/report", url.Values{
		"start_date": {"2024-01-01"},
		"end_date":   {"2024-01-31"},
		"export_csv": {"1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="deals_report.csv"`, rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one January deal")
	header := rows[0]
	assert.Equal(t, core.DealFields(), header)

	total := decimal.Zero
	for _, col := range []string{"reserve", "vsc", "gap", "tw", "tricare", "key"} {
		i := slices.Index(header, col)
		require.GreaterOrEqual(t, i, 0, col)
		v, err := decimal.NewFromString(rows[1][i])
		require.NoError(t, err, col)
		total = total.Add(v)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(800)), "monetary columns sum to total_profit, got %s", total)
}

func TestReportOtherExports(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.seedScenario()

	rec := e.do(http.MethodPost, "/report", url.Values{"export_xlsx": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="deals_report.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip container")

	rec = e.do(http.MethodPost, "/report", url.Values{"export_pdf": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestAPIReportScenarios(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rec := e.do(http.MethodGet, "/api/v1/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total_profit": "0.00",
		"total_deals": 0,
		"avg_profit_per_car": "0.00",
		"avg_products_sold": 0,
		"products_sold": {"vsc_sold":0,"gap_sold":0,"tw_sold":0,"tricare_sold":0,"key_sold":0},
		"deals": []
	}`, rec.Body.String(), "empty store yields zeros")

	e.seedScenario()

	var got reportJSON
	rec = e.do(http.MethodGet, "/api/v1/report?start_date=2024-01-01&end_date=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalDeals)
	assert.Equal(t, "800.00", got.TotalProfit)
	assert.Equal(t, "800.00", got.AvgProfitPerCar)
	assert.Equal(t, 1, got.ProductsSold["vsc_sold"])
	assert.InDelta(t, 1.0, got.AvgProductsSold, 1e-9)

	rec = e.do(http.MethodGet, "/api/v1/report", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalDeals)
	assert.Equal(t, "1000.00", got.TotalProfit)
	assert.Equal(t, "500.00", got.AvgProfitPerCar)

	rec = e.do(http.MethodGet, "/api/v1/report?managers=2", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalDeals)
	assert.Equal(t, "200.00", got.TotalProfit)

	rec = e.do(http.MethodGet, "/api/v1/report?managers=x", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPIDeals(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.seedScenario()

	var got struct {
		Count int        `json:"count"`
		Deals []dealJSON `json:"deals"`
	}
	rec := e.do(http.MethodGet, "/api/v1/deals?q=jones", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "B", got.Deals[0].StockNumber)
	assert.Equal(t, "M2", got.Deals[0].Manager)
	assert.Equal(t, "200.00", got.Deals[0].Profit)
}

func TestAPIAcceptsBearerToken(t *testing.T) {
	e := newTestEnv(t)
	token, err := e.srv.auth.IssueToken(auth.Principal{UserID: 1, Username: testUser})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaleCookieFallsBackToBearerToken(t *testing.T) {
	e := newTestEnv(t)
	token, err := e.srv.auth.IssueToken(auth.Principal{UserID: 1, Username: testUser})
	require.NoError(t, err)
	stale := &http.Cookie{Name: auth.CookieName, Value: "expired.or.forged"}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	r.AddCookie(stale)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code, "valid bearer token wins over a stale cookie")

	r = httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	r.AddCookie(stale)
	rec = httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManagers(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rec := e.do(http.MethodPost, "/managers", url.Values{"name": {"M3"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = e.do(http.MethodGet, "/managers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "M3")

	rec = e.do(http.MethodPost, "/managers", url.Values{"name": {"M1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")

	rec = e.do(http.MethodPost, "/managers", url.Values{"name": {" "}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/readyz", nil).Code)

	down := newTestEnv(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("database is locked") }
	})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/readyz", nil).Code)
}

func TestStaticAndSecurityHeaders(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/static/app.css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")

	rec = e.do(http.MethodGet, "/login", nil)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestUnknownRouteIs404(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
