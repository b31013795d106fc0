package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tourtrust/internal/config"
	"tourtrust/internal/db"
	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
	"tourtrust/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.ScoreDraw = func(min, max int) int { return min }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestCoveredBookingFlow(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/verifications", map[string]any{
		"subject_name": "Ravi Guide Services",
		"subject_type": "guide",
	}, map[string]string{"X-Actor-Id": "admin"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit verification: %d %s", res.StatusCode, string(data))
	}
	var v domain.VerificationRecord
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/verifications/"+v.ID+"/decision", map[string]any{
		"approve": true,
	}, map[string]string{"X-Actor-Id": "admin"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"listing": map[string]any{
			"id": "trek-1", "provider_id": v.ID,
			"kind": "guide", "base_price": 1500, "contract_coverage": true,
		},
		"guest_count": 2,
		"start_date":  "2026-04-01",
		"end_date":    "2026-04-03",
	}, map[string]string{"X-Actor-Id": "guest-1"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", res.StatusCode, string(data))
	}
	var booked domain.BookingResult
	if err := json.Unmarshal(data, &booked); err != nil {
		t.Fatalf("unmarshal booking: %v", err)
	}
	if booked.ContractID == nil {
		t.Fatalf("expected contract id on covered booking")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/contracts/"+*booked.ContractID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get contract: %d %s", res.StatusCode, string(data))
	}
	var c domain.SmartContract
	_ = json.Unmarshal(data, &c)
	if c.Status != "active" || len(c.Milestones) != 2 {
		t.Fatalf("expected active contract with 2 milestones, got %s/%d", c.Status, len(c.Milestones))
	}

	// overlapping window is refused with a conflict envelope
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"listing": map[string]any{
			"id": "trek-1", "provider_id": v.ID,
			"kind": "guide", "base_price": 1500,
		},
		"guest_count": 1,
		"start_date":  "2026-04-02",
		"end_date":    "2026-04-05",
	}, map[string]string{"X-Actor-Id": "guest-2"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "conflict" {
		t.Fatalf("expected conflict code, got %q", envelope.Error.Code)
	}
}

func TestUnverifiedProviderRefused(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/bookings", map[string]any{
		"listing": map[string]any{
			"id": "stay-1", "provider_id": "nobody",
			"kind": "accommodation", "base_price": 900, "contract_coverage": true,
		},
		"guest_count": 2,
		"start_date":  "2026-04-01",
		"end_date":    "2026-04-02",
	}, map[string]string{"X-Actor-Id": "guest-1"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "provider_not_verified" {
		t.Fatalf("expected provider_not_verified, got %q", envelope.Error.Code)
	}
}

func TestJWTAuthRequired(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret})
	client := srv.Client()

	// no credentials
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected open health, got %d", res.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d %s", res.StatusCode, string(data))
	}
}
