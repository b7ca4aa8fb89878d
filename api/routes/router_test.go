package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/api/controllers"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	checkoutsvc "github.com/jordibadia/ferncart-backend/internal/checkout"
	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCartService struct {
	record *models.CartRecord
}

func (s *stubCartService) CreateOrGet(ctx context.Context, sessionKey string) (*models.CartRecord, error) {
	return s.record, nil
}

func (s *stubCartService) Get(ctx context.Context, cartID uuid.UUID) (*models.CartRecord, error) {
	return s.record, nil
}

func (s *stubCartService) UpdateAddresses(ctx context.Context, cartID uuid.UUID, shipping, billing *types.Address) error {
	return nil
}

func (s *stubCartService) UpdateEmail(ctx context.Context, cartID uuid.UUID, email string) error {
	return nil
}

func (s *stubCartService) AddShippingMethod(ctx context.Context, cartID uuid.UUID, selection types.ShippingSelection) error {
	return nil
}

func (s *stubCartService) MergeMetadata(ctx context.Context, cartID uuid.UUID, metadata map[string]string) error {
	return nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) Initialize(ctx context.Context, cartID uuid.UUID, input checkoutsvc.InitializeInput) (*checkoutsvc.InitializeResult, error) {
	return &checkoutsvc.InitializeResult{
		Cart:             &models.CartRecord{ID: cartID, Status: enums.CartStatusActive},
		ClientCredential: "pi_test_secret",
		AmountCents:      1500,
	}, nil
}

func (stubCheckoutService) PrepareSubmit(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	return &models.PaymentSession{CartID: cartID, AmountCents: 1500, ClientCredential: "pi_test_secret"}, nil
}

func (stubCheckoutService) Confirm(ctx context.Context, cartID uuid.UUID) (*checkoutsvc.ConfirmResult, error) {
	return &checkoutsvc.ConfirmResult{}, nil
}

func (stubCheckoutService) Abandon(ctx context.Context, cartID uuid.UUID) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		CartToken: config.CartTokenConfig{
			Secret:     "secret",
			Issuer:     "ferncart-test",
			TTLMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, cartID uuid.UUID) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(RouterParams{
		Config:          cfg,
		Logger:          logg,
		HealthDeps:      map[string]controllers.Pinger{"db": stubPinger{}},
		CartService:     &stubCartService{record: &models.CartRecord{ID: cartID, Status: enums.CartStatusActive}},
		CheckoutService: stubCheckoutService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, cartID uuid.UUID) string {
	t.Helper()
	token, err := cart.MintCartToken(cfg.CartToken, time.Now(), cartID, "sess-router-test")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig(), uuid.New())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
}

func TestPublicPing(t *testing.T) {
	router := newTestRouter(testConfig(), uuid.New())
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for public ping got %d", resp.Code)
	}
}

func TestCartGroupRejectsMissingToken(t *testing.T) {
	router := newTestRouter(testConfig(), uuid.New())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cart token got %d", resp.Code)
	}
}

func TestCartGroupAcceptsValidToken(t *testing.T) {
	cfg := testConfig()
	cartID := uuid.New()
	router := newTestRouter(cfg, cartID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	req.Header.Set("X-Cart-Token", buildToken(t, cfg, cartID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid cart token got %d", resp.Code)
	}
}

func TestCartCreateIssuesToken(t *testing.T) {
	router := newTestRouter(testConfig(), uuid.New())
	body := `{"session_key":"sess-123456"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for cart create got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"token"`) {
		t.Fatalf("expected token in response body: %s", resp.Body.String())
	}
}

func TestCheckoutRejectsBadJSON(t *testing.T) {
	cfg := testConfig()
	cartID := uuid.New()
	router := newTestRouter(cfg, cartID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cart-Token", buildToken(t, cfg, cartID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid payload got %d", resp.Code)
	}
}

func TestCheckoutInitializeSucceeds(t *testing.T) {
	cfg := testConfig()
	cartID := uuid.New()
	router := newTestRouter(cfg, cartID)

	body := `{"email":"fern@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cart-Token", buildToken(t, cfg, cartID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for checkout init got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "pi_test_secret") {
		t.Fatalf("expected client credential in body: %s", resp.Body.String())
	}
}
