package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "load-secret"

// fakeShop изображает HTTP API магазина: проверяет сессию и токен и выдаёт номера заказов.
type fakeShop struct {
	mu       sync.Mutex
	calls    map[string]int
	nextID   atomic.Int64
	failPath string
}

func newFakeShop() *fakeShop {
	return &fakeShop{calls: make(map[string]int)}
}

func (f *fakeShop) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()

	if f.failPath != "" && strings.HasPrefix(r.URL.Path, f.failPath) {
		w.WriteHeader(http.StatusConflict)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/basket/"):
		if r.Method == http.MethodPost {
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s-1", Path: "/"})
			w.WriteHeader(http.StatusOK)
			return
		}
		if _, err := r.Cookie("sessionid"); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	case r.URL.Path == "/api/orders/":
		if !validToken(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var items []basketItem
		if err := json.NewDecoder(r.Body).Decode(&items); err != nil || len(items) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(orderIDResponse{OrderID: f.nextID.Add(1)})
	case strings.HasPrefix(r.URL.Path, "/api/orders/"), strings.HasPrefix(r.URL.Path, "/api/payment/"):
		if !validToken(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"orderId":1}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func validToken(r *http.Request) bool {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	id, err := strconv.ParseInt(token.Claims.(*jwt.RegisteredClaims).Subject, 10, 64)
	return err == nil && id > 0
}

func noEnv(string) string { return "" }

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeBasket, modeOrder, modeOrderPay} {
		got, err := parseMode(" " + string(mode) + " ")
		if err != nil {
			t.Fatalf("parseMode(%s) error: %v", mode, err)
		}
		if got != mode {
			t.Fatalf("parseMode(%s) = %s", mode, got)
		}
	}

	if _, err := parseMode("create"); err == nil {
		t.Fatal("expected unsupported mode error")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-addr=http://shop:8000/",
		"-total=10",
		"-concurrency=4",
		"-timeout=2s",
		"-mode=order-pay",
		"-product-id=5",
		"-count=2",
		"-delivery=express",
		"-output=report.json",
	}, func(key string) string {
		if key == envJWTSecret {
			return "from-env"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("parseConfig error: %v", err)
	}
	if cfg.baseURL != "http://shop:8000" {
		t.Fatalf("unexpected base url: %s", cfg.baseURL)
	}
	if !cfg.totalSet || cfg.total != 10 || cfg.concurrency != 4 {
		t.Fatalf("unexpected counters: %+v", cfg)
	}
	if cfg.timeout != 2*time.Second || cfg.mode != modeOrderPay {
		t.Fatalf("unexpected timeout/mode: %s %s", cfg.timeout, cfg.mode)
	}
	if cfg.productID != 5 || cfg.count != 2 || cfg.deliveryType != "express" {
		t.Fatalf("unexpected order params: %+v", cfg)
	}
	if cfg.jwtSecret != "from-env" {
		t.Fatalf("expected jwt secret from env, got %q", cfg.jwtSecret)
	}

	cfg, err = parseConfig(nil, noEnv)
	if err != nil {
		t.Fatalf("defaults must be valid for basket mode: %v", err)
	}
	if cfg.mode != modeBasket || cfg.totalSet {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"-mode=fly"}, "unsupported mode"},
		{[]string{"-addr= "}, "addr is required"},
		{[]string{"-duration=-1s"}, "duration must be >= 0"},
		{[]string{"-total=0"}, "total must be > 0"},
		{[]string{"-duration=1s", "-total=0"}, "explicitly set"},
		{[]string{"-concurrency=0"}, "concurrency must be > 0"},
		{[]string{"-timeout=0s"}, "timeout must be > 0"},
		{[]string{"-product-id=0"}, "product-id must be > 0"},
		{[]string{"-count=0"}, "count must be > 0"},
		{[]string{"-user-offset=0"}, "user-offset must be > 0"},
		{[]string{"-delivery=drone"}, "unsupported delivery"},
		{[]string{"-mode=order"}, "jwt-secret"},
	}

	for _, tc := range cases {
		_, err := parseConfig(tc.args, noEnv)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("args %v: expected %q error, got %v", tc.args, tc.want, err)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, "ok", true)
	c.record("scenario", 20*time.Millisecond, "failed", false)
	c.record("SubmitCart", 15*time.Millisecond, "200", true)
	c.record("SubmitCart", 5*time.Millisecond, codeTransportError, false)

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 || r.ErrorRate != 0.5 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS != 1 {
		t.Fatalf("expected rps=1, got %f", r.RPS)
	}
	submit, ok := r.Methods["SubmitCart"]
	if !ok {
		t.Fatalf("expected SubmitCart stats in report")
	}
	if submit.Codes["200"] != 1 || submit.Codes[codeTransportError] != 1 {
		t.Fatalf("unexpected codes: %+v", submit.Codes)
	}
	if submit.LatencyMs.Min != 5 || submit.LatencyMs.Max != 15 {
		t.Fatalf("unexpected latency summary: %+v", submit.LatencyMs)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 != 25 || summary.Max != 40 || summary.Avg != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile([]float64{7}, 99); p != 7 {
		t.Fatalf("single value percentile must be the value, got %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestUserToken(t *testing.T) {
	raw, err := userToken(testSecret, 42)
	if err != nil {
		t.Fatalf("userToken error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	if !validToken(req) {
		t.Fatal("signed token must be accepted")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", sample); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}

func TestRunScenario_Modes(t *testing.T) {
	shop := newFakeShop()
	server := httptest.NewServer(shop)
	defer server.Close()

	base := config{baseURL: server.URL, timeout: time.Second, productID: 1, count: 1, cardNumber: "12345678", deliveryType: "ordinary", jwtSecret: testSecret, userOffset: 100}

	cfg := base
	cfg.mode = modeBasket
	col := newCollector()
	if err := runScenario(newShopClient(cfg, server.Client().Transport, col), cfg, 0); err != nil {
		t.Fatalf("basket scenario failed: %v", err)
	}
	if shop.count("GET /api/basket/") != 1 {
		t.Fatal("basket must be read with the session cookie")
	}

	cfg.mode = modeOrderPay
	if err := runScenario(newShopClient(cfg, server.Client().Transport, col), cfg, 1); err != nil {
		t.Fatalf("order-pay scenario failed: %v", err)
	}
	if shop.count("POST /api/orders/1/") != 1 || shop.count("POST /api/payment/1/") != 1 {
		t.Fatalf("unexpected calls: %+v", shop.calls)
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 0 {
		t.Fatalf("unexpected report: %+v", r)
	}
	for _, name := range []string{"AddToBasket", "GetBasket", "SubmitCart", "Checkout", "Payment"} {
		if r.Methods[name].Success != 1 {
			t.Fatalf("expected one successful %s call, got %+v", name, r.Methods[name])
		}
	}
}

func TestRunScenario_Failures(t *testing.T) {
	shop := newFakeShop()
	shop.failPath = "/api/payment/"
	server := httptest.NewServer(shop)
	defer server.Close()

	cfg := config{baseURL: server.URL, timeout: time.Second, mode: modeOrderPay, productID: 1, count: 1, cardNumber: "12345678", deliveryType: "ordinary", jwtSecret: testSecret, userOffset: 1}
	col := newCollector()

	err := runScenario(newShopClient(cfg, server.Client().Transport, col), cfg, 0)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected payment conflict, got %v", err)
	}

	cfg.jwtSecret = "wrong"
	if err := runScenario(newShopClient(cfg, server.Client().Transport, col), cfg, 1); err == nil {
		t.Fatal("expected unauthorized error for bad token")
	}

	r := col.buildReport(time.Now(), time.Second)
	if r.FailedScenarios != 2 {
		t.Fatalf("expected 2 failed scenarios, got %+v", r)
	}
	if r.Methods["Payment"].Codes["409"] != 1 || r.Methods["SubmitCart"].Codes["401"] != 1 {
		t.Fatalf("unexpected method codes: %+v", r.Methods)
	}

	cfg.baseURL = "http://127.0.0.1:1"
	cfg.jwtSecret = testSecret
	if err := runScenario(newShopClient(cfg, http.DefaultTransport, col), cfg, 2); err == nil {
		t.Fatal("expected transport error")
	}
	if col.buildReport(time.Now(), time.Second).Methods["SubmitCart"].Codes[codeTransportError] != 1 {
		t.Fatal("expected transport error to be recorded")
	}
}

func TestRunLoad(t *testing.T) {
	shop := newFakeShop()
	server := httptest.NewServer(shop)
	defer server.Close()

	cfg := config{baseURL: server.URL, total: 20, concurrency: 4, timeout: time.Second, mode: modeOrder, productID: 1, count: 1, deliveryType: "express", jwtSecret: testSecret, userOffset: 1}

	r := runLoad(cfg, server.Client().Transport)
	if r.TotalScenarios != 20 || r.SuccessScenarios != 20 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if shop.count("POST /api/orders/") != 20 {
		t.Fatalf("expected 20 submitted carts, got %d", shop.count("POST /api/orders/"))
	}
	if _, ok := r.Methods["Payment"]; ok {
		t.Fatal("order mode must not pay")
	}
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":   {Calls: 2, Success: 2},
			"SubmitCart": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeOrder, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "SubmitCart") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
