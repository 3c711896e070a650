package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillm/kis-trader/internal/domain"
)

// fakeKIS - минимальная имитация HTTP API брокера
type fakeKIS struct {
	mu sync.Mutex

	tokenCalls  atomic.Int32
	tokenStatus int
	tokenBody   string
	tokenGate   chan struct{}

	priceCalls  atomic.Int32
	priceStatus int
	priceBody   string

	orderCalls  atomic.Int32
	orderStatus int
	orderBody   string

	lastHeaders http.Header
	lastQuery   map[string]string
	lastOrder   orderCashBody
}

func newFakeKIS() *fakeKIS {
	return &fakeKIS{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"tok-1","token_type":"Bearer","expires_in":86400}`,
		priceStatus: http.StatusOK,
		priceBody:   `{"rt_cd":"0","msg_cd":"MCA00000","msg1":"ok","output":{"stck_prpr":"49000"}}`,
		orderStatus: http.StatusOK,
		orderBody:   `{"rt_cd":"0","msg_cd":"APBK0013","msg1":"order accepted","output":{"ODNO":"0000117057","ORD_TMD":"121052"}}`,
	}
}

func (f *fakeKIS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastHeaders = r.Header.Clone()
	f.mu.Unlock()

	switch r.URL.Path {
	case domain.KISTokenPath:
		f.tokenCalls.Add(1)
		f.mu.Lock()
		gate, status, body := f.tokenGate, f.tokenStatus, f.tokenBody
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		writeJSON(w, status, body)
	case domain.KISPricePath:
		f.priceCalls.Add(1)
		f.mu.Lock()
		f.lastQuery = map[string]string{
			"FID_COND_MRKT_DIV_CODE": r.URL.Query().Get("FID_COND_MRKT_DIV_CODE"),
			"FID_INPUT_ISCD":         r.URL.Query().Get("FID_INPUT_ISCD"),
		}
		status, body := f.priceStatus, f.priceBody
		f.mu.Unlock()
		writeJSON(w, status, body)
	case domain.KISOrderPath:
		f.orderCalls.Add(1)
		var order orderCashBody
		_ = json.NewDecoder(r.Body).Decode(&order)
		f.mu.Lock()
		f.lastOrder = order
		status, body := f.orderStatus, f.orderBody
		f.mu.Unlock()
		writeJSON(w, status, body)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, fake *fakeKIS, realTrading bool) *KISClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewKISClient(Options{
		BaseURL:     srv.URL,
		Credentials: Credentials{AppKey: "key", AppSecret: "secret"},
		RealTrading: realTrading,
		Timeout:     2 * time.Second,
	})
}

func testOrder(side domain.Side) domain.OrderRequest {
	return domain.OrderRequest{
		Side:     side,
		Symbol:   "005930",
		Account:  domain.Account{Number: "12345678", ProductCode: "01"},
		Quantity: 1,
	}
}

func TestSession_CachesCredential(t *testing.T) {
	fake := newFakeKIS()
	client := newTestClient(t, fake, false)

	for i := 0; i < 3; i++ {
		token, err := client.Session().Credential(context.Background())
		if err != nil {
			t.Fatalf("Credential: %v", err)
		}
		if token != "tok-1" {
			t.Errorf("Credential() = %v, want tok-1", token)
		}
	}

	if got := fake.tokenCalls.Load(); got != 1 {
		t.Errorf("token exchanges = %d, want 1", got)
	}
}

func TestSession_SingleFlight(t *testing.T) {
	fake := newFakeKIS()
	fake.tokenGate = make(chan struct{})
	client := newTestClient(t, fake, false)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := client.Session().Credential(context.Background())
			if err == nil && token != "tok-1" {
				err = errors.New("unexpected token " + token)
			}
			errs <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.tokenCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(fake.tokenGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Credential: %v", err)
		}
	}
	if got := fake.tokenCalls.Load(); got != 1 {
		t.Errorf("token exchanges = %d, want 1", got)
	}
}

func TestSession_FailureLeavesCacheEmpty(t *testing.T) {
	fake := newFakeKIS()
	fake.tokenStatus = http.StatusForbidden
	fake.tokenBody = `{"error_code":"EGW00103","error_description":"invalid appkey"}`
	client := newTestClient(t, fake, false)

	_, err := client.Session().Credential(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Credential() error = %v, want ErrAuth", err)
	}
	if client.Session().hasCredential() {
		t.Error("cache must stay empty after a failed exchange")
	}

	fake.mu.Lock()
	fake.tokenStatus = http.StatusOK
	fake.tokenBody = `{"access_token":"tok-2","expires_in":86400}`
	fake.mu.Unlock()

	token, err := client.Session().Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential after recovery: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("Credential() = %v, want tok-2", token)
	}
	if got := fake.tokenCalls.Load(); got != 2 {
		t.Errorf("token exchanges = %d, want 2", got)
	}
}

func TestSession_EmptyTokenIsAuthError(t *testing.T) {
	fake := newFakeKIS()
	fake.tokenBody = `{"token_type":"Bearer"}`
	client := newTestClient(t, fake, false)

	if _, err := client.Session().Credential(context.Background()); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("Credential() error = %v, want ErrAuth", err)
	}
}

func TestSession_NoExpiryByDefault(t *testing.T) {
	fake := newFakeKIS()
	client := newTestClient(t, fake, false)
	session := client.Session()

	if _, err := session.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	session.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	if _, err := session.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got := fake.tokenCalls.Load(); got != 1 {
		t.Errorf("token exchanges = %d, want 1 (cached token never expires)", got)
	}
}

func TestSession_HonorExpiry(t *testing.T) {
	fake := newFakeKIS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := NewKISClient(Options{
		BaseURL:     srv.URL,
		Credentials: Credentials{AppKey: "key", AppSecret: "secret"},
		TokenExpiry: true,
	})
	session := client.Session()

	base := time.Now()
	session.now = func() time.Time { return base }
	if _, err := session.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}

	session.now = func() time.Time { return base.Add(23 * time.Hour) }
	if _, err := session.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got := fake.tokenCalls.Load(); got != 1 {
		t.Fatalf("token exchanges = %d, want 1 before expiry", got)
	}

	session.now = func() time.Time { return base.Add(24 * time.Hour) }
	if _, err := session.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if got := fake.tokenCalls.Load(); got != 2 {
		t.Errorf("token exchanges = %d, want 2 after expiry", got)
	}
}

func TestGetPrice(t *testing.T) {
	fake := newFakeKIS()
	client := newTestClient(t, fake, false)

	quote, err := client.GetPrice(context.Background(), "005930")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if quote.LastPrice != 49000 || quote.Symbol != "005930" {
		t.Errorf("GetPrice() = %+v, want 005930 @ 49000", quote)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.lastHeaders.Get("authorization"); got != "Bearer tok-1" {
		t.Errorf("authorization = %q, want Bearer tok-1", got)
	}
	if got := fake.lastHeaders.Get("tr_id"); got != domain.TrIDInquirePrice {
		t.Errorf("tr_id = %q, want %q", got, domain.TrIDInquirePrice)
	}
	if got := fake.lastHeaders.Get("appkey"); got != "key" {
		t.Errorf("appkey = %q, want key", got)
	}
	if got := fake.lastHeaders.Get("custtype"); got != "P" {
		t.Errorf("custtype = %q, want P", got)
	}
	if fake.lastQuery["FID_COND_MRKT_DIV_CODE"] != "J" || fake.lastQuery["FID_INPUT_ISCD"] != "005930" {
		t.Errorf("query = %v", fake.lastQuery)
	}
}

func TestGetPrice_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.BrokerErrorKind
	}{
		{"server error", http.StatusInternalServerError, `{}`, domain.BrokerBadResponse},
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.BrokerAuth},
		{"forbidden", http.StatusForbidden, `{}`, domain.BrokerAuth},
		{"malformed", http.StatusOK, `{"output":`, domain.BrokerBadResponse},
		{"broker code", http.StatusOK, `{"rt_cd":"1","msg_cd":"EGW00201","msg1":"rate limit"}`, domain.BrokerBadResponse},
		{"empty price", http.StatusOK, `{"rt_cd":"0","output":{"stck_prpr":""}}`, domain.BrokerBadResponse},
		{"non numeric", http.StatusOK, `{"rt_cd":"0","output":{"stck_prpr":"n/a"}}`, domain.BrokerBadResponse},
		{"zero price", http.StatusOK, `{"rt_cd":"0","output":{"stck_prpr":"0"}}`, domain.BrokerBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKIS()
			fake.priceStatus = tt.status
			fake.priceBody = tt.body
			client := newTestClient(t, fake, false)

			_, err := client.GetPrice(context.Background(), "005930")
			if !errors.Is(err, domain.ErrBroker) {
				t.Fatalf("GetPrice() error = %v, want ErrBroker", err)
			}
			if got := domain.BrokerErrorKindOf(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestGetPrice_NetworkError(t *testing.T) {
	fake := newFakeKIS()
	srv := httptest.NewServer(fake)
	client := NewKISClient(Options{
		BaseURL:     srv.URL,
		Credentials: Credentials{AppKey: "key", AppSecret: "secret"},
	})
	if _, err := client.Session().Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	srv.Close()

	_, err := client.GetPrice(context.Background(), "005930")
	if got := domain.BrokerErrorKindOf(err); got != domain.BrokerNetwork {
		t.Errorf("kind = %v, want %v (err %v)", got, domain.BrokerNetwork, err)
	}
}

func TestGetPrice_AuthFailure(t *testing.T) {
	fake := newFakeKIS()
	fake.tokenStatus = http.StatusForbidden
	client := newTestClient(t, fake, false)

	_, err := client.GetPrice(context.Background(), "005930")
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("GetPrice() error = %v, want ErrAuth", err)
	}
	if got := fake.priceCalls.Load(); got != 0 {
		t.Errorf("price calls = %d, want 0", got)
	}
}

func TestSubmitOrder_Filled(t *testing.T) {
	tests := []struct {
		name        string
		side        domain.Side
		realTrading bool
		wantTrID    string
	}{
		{"paper buy", domain.SideBuy, false, domain.TrIDPaperBuy},
		{"paper sell", domain.SideSell, false, domain.TrIDPaperSell},
		{"real buy", domain.SideBuy, true, domain.TrIDRealBuy},
		{"real sell", domain.SideSell, true, domain.TrIDRealSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKIS()
			client := newTestClient(t, fake, tt.realTrading)

			result, err := client.SubmitOrder(context.Background(), testOrder(tt.side))
			if err != nil {
				t.Fatalf("SubmitOrder: %v", err)
			}
			if !result.Filled || result.OrderNo != "0000117057" {
				t.Errorf("SubmitOrder() = %+v, want filled 0000117057", result)
			}

			fake.mu.Lock()
			defer fake.mu.Unlock()
			if got := fake.lastHeaders.Get("tr_id"); got != tt.wantTrID {
				t.Errorf("tr_id = %q, want %q", got, tt.wantTrID)
			}
			want := orderCashBody{CANO: "12345678", AcntPrdtCd: "01", PDNO: "005930", OrdDvsn: "01", OrdQty: "1", OrdUnpr: "0"}
			if fake.lastOrder != want {
				t.Errorf("order body = %+v, want %+v", fake.lastOrder, want)
			}
		})
	}
}

func TestSubmitOrder_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"ok status", http.StatusOK},
		{"server error status", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKIS()
			fake.orderStatus = tt.status
			fake.orderBody = `{"rt_cd":"1","msg_cd":"APBK0986","msg1":"insufficient balance"}`
			client := newTestClient(t, fake, false)

			result, err := client.SubmitOrder(context.Background(), testOrder(domain.SideBuy))
			if err != nil {
				t.Fatalf("SubmitOrder() error = %v, want nil for a rejection", err)
			}
			if result.Filled {
				t.Error("rejected order must not be filled")
			}
			if result.Code != "APBK0986" || result.Message != "insufficient balance" {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestSubmitOrder_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.BrokerErrorKind
	}{
		{"malformed", http.StatusOK, `not json`, domain.BrokerBadResponse},
		{"no rt_cd", http.StatusBadGateway, `{"msg1":"gateway"}`, domain.BrokerBadResponse},
		{"unauthorized", http.StatusUnauthorized, `{"rt_cd":"1"}`, domain.BrokerAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKIS()
			fake.orderStatus = tt.status
			fake.orderBody = tt.body
			client := newTestClient(t, fake, false)

			_, err := client.SubmitOrder(context.Background(), testOrder(domain.SideSell))
			if got := domain.BrokerErrorKindOf(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v (err %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestSubmitOrder_InvalidRequest(t *testing.T) {
	fake := newFakeKIS()
	client := newTestClient(t, fake, false)

	req := testOrder(domain.SideBuy)
	req.Quantity = 0

	_, err := client.SubmitOrder(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("SubmitOrder() error = %v, want ErrInvalidInput", err)
	}
	if got := fake.orderCalls.Load(); got != 0 {
		t.Errorf("order calls = %d, want 0", got)
	}
}

func TestOrderTrID(t *testing.T) {
	if _, err := OrderTrID(domain.Side("HOLD"), false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("OrderTrID(HOLD) error = %v, want ErrInvalidInput", err)
	}
}

func TestBuildOrderBody_Defaults(t *testing.T) {
	body, err := buildOrderBody(domain.OrderRequest{
		Side:     domain.SideBuy,
		Symbol:   "000660",
		Account:  domain.Account{Number: "87654321"},
		Quantity: 5,
	})
	if err != nil {
		t.Fatalf("buildOrderBody: %v", err)
	}
	if body.AcntPrdtCd != "01" || body.OrdDvsn != domain.OrderTypeMarket || body.OrdQty != "5" {
		t.Errorf("buildOrderBody() = %+v", body)
	}
}
