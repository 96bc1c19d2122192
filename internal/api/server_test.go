package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/analytics"
	market "cascadeflow/internal/channel/market"
	"cascadeflow/internal/feed"
	"cascadeflow/internal/models"
)

func testServer(t *testing.T) (*Server, *feed.Health) {
	t.Helper()

	cfg := &appconfig.Config{}
	cfg.Regime.ReferenceSymbol = "BTCUSDT"

	health := feed.NewHealth(30 * time.Second)
	s := NewServer(
		appconfig.APIConfig{Enabled: true, Address: ":0"},
		analytics.NewStore(10),
		analytics.NewRegimeDetector(cfg, market.NewChannels(1)),
		health,
	)
	if s == nil {
		t.Fatal("enabled server must not be nil")
	}
	return s, health
}

func TestServerDisabledReturnsNil(t *testing.T) {
	if s := NewServer(appconfig.APIConfig{Enabled: false}, nil, nil, nil); s != nil {
		t.Fatal("disabled server must be nil")
	}
}

func TestHealthEndpointReportsStaleVenues(t *testing.T) {
	s, health := testServer(t)
	router, err := s.buildRouter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	health.MarkSeen(models.ExchangeBinance)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("three silent venues must report 503, got %d", rec.Code)
	}

	var body struct {
		Healthy bool                      `json:"healthy"`
		Venues  map[string]map[string]any `json:"venues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Healthy {
		t.Fatal("expected unhealthy")
	}
	if live, _ := body.Venues["binance"]["live"].(bool); !live {
		t.Fatal("binance was just seen, must be live")
	}
	if live, _ := body.Venues["okx"]["live"].(bool); live {
		t.Fatal("okx never seen, must be stale")
	}
}

func TestSignalEndpointUnknownSymbol(t *testing.T) {
	s, _ := testServer(t)
	router, err := s.buildRouter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signal/DOGEUSDT", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown symbol must 404, got %d", rec.Code)
	}
}

func TestRegimeEndpointServesDefault(t *testing.T) {
	s, _ := testServer(t)
	router, err := s.buildRouter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/regime", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("regime endpoint must always answer, got %d", rec.Code)
	}

	var regime models.MarketRegime
	if err := json.Unmarshal(rec.Body.Bytes(), &regime); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if regime.VolatilityName != "NORMAL" {
		t.Fatalf("default regime must be NORMAL, got %s", regime.VolatilityName)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":             ":8080",
		"8080":         ":8080",
		":9000":        ":9000",
		"0.0.0.0:9000": "0.0.0.0:9000",
	}
	for in, want := range cases {
		if got := normalizeAddress(in); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("critical") != models.LevelCritical {
		t.Fatal("parseLevel must be case-insensitive")
	}
	if parseLevel("bogus") != models.LevelNone {
		t.Fatal("unknown level must map to NONE")
	}
}
