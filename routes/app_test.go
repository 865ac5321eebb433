package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/anjiri1684/tuition_coupons/configs"
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/anjiri1684/tuition_coupons/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "hook-secret"

type testServer struct {
	app     *fiber.App
	db      *gorm.DB
	student models.User
	staff   models.User
	gateway models.Gateway
	inst    []models.Installment
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	audit := services.NewAuditService(db, log)
	coupons := services.NewCouponService(db, log, audit, services.CouponOptions{Validity: 7 * 24 * time.Hour})

	s := &testServer{db: db}
	s.app = NewApp(Deps{
		Settings:     config.Settings{AppEnv: "test", JWTSecret: "test-secret", WebhookSecret: webhookSecret},
		Log:          log,
		Sessions:     services.NewSessionService(db, log, audit, "test-secret", time.Hour),
		Coupons:      coupons,
		Installments: services.NewInstallmentService(db, log, audit),
		Catalog:      services.NewCatalogService(db, log, audit),
		Audit:        audit,
		Documents:    services.NewDocumentService(db, log, coupons, nil, nil),
	})
	s.student = testutil.CreateStudent(t, db, "Ana Gomez")
	s.staff = testutil.CreateStaff(t, db)
	s.gateway = testutil.CreateGateway(t, db, "Pago Facil", true)
	due := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 1, 0)
	s.inst = []models.Installment{
		testutil.CreateInstallment(t, db, s.student.ID, "2025-03", "50.00", due),
		testutil.CreateInstallment(t, db, s.student.ID, "2025-04", "50.00", due.AddDate(0, 1, 0)),
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, user models.User) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    user.Email,
		"password": testutil.Password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d body = %v", status, body)
	}
	token, _ := body["token"].(string)
	return token
}

func (s *testServer) generateBody(token string, insts ...models.Installment) map[string]any {
	ids := make([]string, 0, len(insts))
	for _, inst := range insts {
		ids = append(ids, inst.ID.String())
	}
	return map[string]any{
		"installment_ids":   ids,
		"idempotency_token": token,
		"gateway_id":        s.gateway.ID.String(),
	}
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", status, body)
	}
}

func TestCouponLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, s.student)

	status, created := s.do(t, http.MethodPost, "/api/v1/coupons", token, s.generateBody("K1", s.inst...))
	if status != http.StatusCreated || created["outcome"] != "created" {
		t.Fatalf("generate = %d %v", status, created)
	}
	coupon := data(created)
	couponID, _ := coupon["id"].(string)
	if coupon["status"] != "active" || coupon["amount_total"] != "100" && coupon["amount_total"] != "100.00" {
		t.Fatalf("coupon = %v", coupon)
	}

	status, replay := s.do(t, http.MethodPost, "/api/v1/coupons", token, s.generateBody("K1", s.inst[0]))
	if status != http.StatusOK || replay["outcome"] != "replayed" || data(replay)["id"] != couponID {
		t.Fatalf("replay = %d %v", status, replay)
	}

	status, conflict := s.do(t, http.MethodPost, "/api/v1/coupons", token, s.generateBody("K2", s.inst[0]))
	if status != http.StatusConflict || conflict["code"] != "conflict" {
		t.Fatalf("conflict = %d %v", status, conflict)
	}
	if existing, _ := conflict["coupon"].(map[string]any); existing["id"] != couponID {
		t.Fatalf("conflict does not carry the existing coupon: %v", conflict["coupon"])
	}

	status, got := s.do(t, http.MethodGet, "/api/v1/coupons/"+couponID, token, nil)
	if status != http.StatusOK || data(got)["id"] != couponID {
		t.Fatalf("get = %d %v", status, got)
	}

	status, voided := s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/void", token, nil)
	if status != http.StatusOK || data(voided)["status"] != "voided" {
		t.Fatalf("void = %d %v", status, voided)
	}
	status, again := s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/void", token, nil)
	if status != http.StatusConflict || again["current_status"] != "voided" {
		t.Fatalf("second void = %d %v", status, again)
	}

	status, pending := s.do(t, http.MethodGet, "/api/v1/installments/pending", token, nil)
	if status != http.StatusOK {
		t.Fatalf("pending = %d %v", status, pending)
	}
	if list, _ := pending["data"].([]any); len(list) != 2 {
		t.Fatalf("pending after void = %v", pending["data"])
	}
}

func TestGenerateAcceptsIdempotencyHeader(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, s.student)
	body := s.generateBody("", s.inst[0])

	status, first := s.do(t, http.MethodPost, "/api/v1/coupons", token, body, "Idempotency-Key", "HDR-1")
	if status != http.StatusCreated {
		t.Fatalf("first = %d %v", status, first)
	}
	status, second := s.do(t, http.MethodPost, "/api/v1/coupons", token, body, "Idempotency-Key", "HDR-1")
	if status != http.StatusOK || data(second)["id"] != data(first)["id"] {
		t.Fatalf("second = %d %v", status, second)
	}
}

func TestGenerateValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, s.student)

	status, body := s.do(t, http.MethodPost, "/api/v1/coupons", token, s.generateBody("K1"))
	if status != http.StatusBadRequest || body["field"] != "installment_ids" {
		t.Fatalf("empty set = %d %v", status, body)
	}
	bad := s.generateBody("K1", s.inst[0])
	bad["gateway_id"] = "not-a-uuid"
	status, body = s.do(t, http.MethodPost, "/api/v1/coupons", token, bad)
	if status != http.StatusBadRequest || body["field"] != "gateway_id" {
		t.Fatalf("bad gateway = %d %v", status, body)
	}
}

func TestStaffOnlyEndpoints(t *testing.T) {
	s := newTestServer(t)
	student := s.login(t, s.student)
	staff := s.login(t, s.staff)

	_, created := s.do(t, http.MethodPost, "/api/v1/coupons", student, s.generateBody("K1", s.inst[0]))
	couponID, _ := data(created)["id"].(string)

	status, _ := s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/status", student, map[string]string{"status": "paid"})
	if status != http.StatusForbidden {
		t.Fatalf("student override = %d", status)
	}
	status, _ = s.do(t, http.MethodGet, "/api/v1/coupons/stats", student, nil)
	if status != http.StatusForbidden {
		t.Fatalf("student stats = %d", status)
	}
	status, _ = s.do(t, http.MethodGet, "/api/v1/audit-logs", student, nil)
	if status != http.StatusForbidden {
		t.Fatalf("student audit = %d", status)
	}

	status, body := s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/void", staff, map[string]string{})
	if status != http.StatusBadRequest || body["field"] != "reason" {
		t.Fatalf("staff void without reason = %d %v", status, body)
	}

	status, body = s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/status", staff, map[string]string{"status": "paid", "reason": "paid at desk"})
	if status != http.StatusOK || data(body)["status"] != "paid" {
		t.Fatalf("staff override = %d %v", status, body)
	}
	status, body = s.do(t, http.MethodGet, "/api/v1/coupons/stats", staff, nil)
	if status != http.StatusOK || data(body)["paid"] != float64(1) {
		t.Fatalf("stats = %d %v", status, body)
	}

	status, _ = s.do(t, http.MethodDelete, "/api/v1/gateways/"+s.gateway.ID.String(), staff, nil)
	if status != http.StatusConflict {
		t.Fatalf("delete referenced gateway = %d", status)
	}
}

func TestOtherStudentsCouponIsHidden(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, s.student)
	other := testutil.CreateStudent(t, s.db, "Luis Perez")
	intruder := s.login(t, other)

	_, created := s.do(t, http.MethodPost, "/api/v1/coupons", owner, s.generateBody("K1", s.inst[0]))
	couponID, _ := data(created)["id"].(string)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/coupons/"+couponID, intruder, nil); status != http.StatusNotFound {
		t.Fatalf("get = %d, want 404", status)
	}
	if status, _ := s.do(t, http.MethodPatch, "/api/v1/coupons/"+couponID+"/void", intruder, nil); status != http.StatusNotFound {
		t.Fatalf("void = %d, want 404", status)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/coupons", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/coupons", "garbage", nil); status != http.StatusUnauthorized {
		t.Fatalf("malformed token = %d", status)
	}
	status, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": s.student.Email, "password": "nope"})
	if status != http.StatusUnauthorized || body["code"] != "invalid_credentials" {
		t.Fatalf("bad password = %d %v", status, body)
	}

	token := s.login(t, s.student)
	status, body = s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if status != http.StatusOK || data(body)["role"] != "student" {
		t.Fatalf("me = %d %v", status, body)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout = %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/coupons", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("revoked session = %d", status)
	}
}

func TestSettlementWebhook(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, s.student)
	_, created := s.do(t, http.MethodPost, "/api/v1/coupons", token, s.generateBody("K1", s.inst[0]))
	couponID, _ := data(created)["id"].(string)
	payload := map[string]any{"coupon_id": couponID, "reference": "PF-1", "result_code": 0}

	if status, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload); status != http.StatusUnauthorized {
		t.Fatalf("missing secret = %d", status)
	}
	status, body := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", map[string]any{"coupon_id": couponID, "result_code": 1, "result_desc": "insufficient funds"}, "X-Webhook-Secret", webhookSecret)
	if status != http.StatusOK || body["message"] != "Acknowledged failed payment" {
		t.Fatalf("failed payment = %d %v", status, body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Webhook-Secret", webhookSecret)
	if status != http.StatusOK || data(body)["status"] != "paid" {
		t.Fatalf("settlement = %d %v", status, body)
	}
	status, body = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Webhook-Secret", webhookSecret)
	if status != http.StatusOK || body["message"] != "Webhook already processed" {
		t.Fatalf("duplicate settlement = %d %v", status, body)
	}

	unknown := map[string]any{"coupon_id": uuid.NewString(), "result_code": 0}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", unknown, "X-Webhook-Secret", webhookSecret); status != http.StatusNotFound {
		t.Fatalf("unknown coupon = %d", status)
	}
}
