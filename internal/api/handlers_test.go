package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gart/membership-service/internal/app"
	"github.com/gart/membership-service/internal/store"
	"github.com/gart/membership-service/pkg/filestore"
)

const testSecret = "handler-test-secret"

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	files, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	service := app.NewService(store.NewMemoryRepository(), nil, app.Options{
		Payment:     app.PaymentTarget{VPA: "gart@okaxis", PayeeName: "GART"},
		Attachments: files,
	})
	router := NewRouter(NewHandler(service, files), NewAuthenticator(AuthConfig{Secret: testSecret}))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, userID, role string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, method, url, token, contentType string, body io.Reader) (*http.Response, testEnvelope) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env testEnvelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope %q: %v", raw, err)
		}
	} else {
		env.Data = raw
	}
	return resp, env
}

func volunteerFormJSON() string {
	return `{"fullName":"Ama Mensah","dateOfBirth":"1990-05-01","gender":"female","mobile":"+233200000000",` +
		`"email":"ama@example.org","city":"Accra","state":"Greater Accra","country":"Ghana",` +
		`"occupation":"Teacher","declaration":true}`
}

func applyBody(t *testing.T, data, payment string, files map[string]string) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("membershipType", "VOLUNTEER")
	if data != "" {
		_ = w.WriteField("data", data)
	}
	if payment != "" {
		_ = w.WriteField("payment", payment)
	}
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte("content of " + name))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return w.FormDataContentType(), &buf
}

// requireKeys fails unless data is a JSON object carrying every key.
func requireKeys(t *testing.T, data json.RawMessage, keys ...string) {
	t.Helper()
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected key %q in %s", key, data)
		}
	}
}

func TestRouter_Authentication(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, server.URL+"/health", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.StatusCode)
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "missing token", path: "/memberships/me/latest", want: http.StatusUnauthorized},
		{name: "expired token", path: "/memberships/me/latest", token: signToken(t, "user-1", "", -time.Minute), want: http.StatusUnauthorized},
		{name: "member on admin route", path: "/memberships", token: signToken(t, "user-1", "member", time.Hour), want: http.StatusForbidden},
		{name: "admin on admin route", path: "/memberships", token: signToken(t, "admin-1", "admin", time.Hour), want: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := doRequest(t, http.MethodGet, server.URL+tc.path, tc.token, "", nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestHandlers_ApplyAndApprove(t *testing.T) {
	server := newTestServer(t)
	userToken := signToken(t, "user-1", "", time.Hour)
	adminToken := signToken(t, "admin-1", "admin", time.Hour)

	resp, env := doRequest(t, http.MethodGet, server.URL+"/memberships/me/latest", userToken, "", nil)
	if resp.StatusCode != http.StatusOK || len(env.Data) != 0 {
		t.Fatalf("expected empty latest application, got %d %s", resp.StatusCode, env.Data)
	}

	quoteBody := fmt.Sprintf(`{"membershipType":"VOLUNTEER","data":%s}`, volunteerFormJSON())
	resp, env = doRequest(t, http.MethodPost, server.URL+"/memberships/quote", userToken, "application/json", strings.NewReader(quoteBody))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected quote 200, got %d: %+v", resp.StatusCode, env)
	}
	requireKeys(t, env.Data, "amount", "currency", "endDate", "qrPayload")
	var quote quoteResponse
	if err := json.Unmarshal(env.Data, &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.Amount != 1000 || quote.Currency != "USD" || !strings.HasPrefix(quote.QRPayload, "upi://pay?") {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	contentType, body := applyBody(t, volunteerFormJSON(), `{"transactionId":"UPI-42","paidAt":"2025-03-09"}`,
		map[string]string{"idProof": "passport.pdf"})
	resp, env = doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected apply 201, got %d: %+v", resp.StatusCode, env)
	}
	requireKeys(t, env.Data, "applicationId", "paymentId", "endDate")
	var applied applyResponse
	if err := json.Unmarshal(env.Data, &applied); err != nil {
		t.Fatalf("decode apply result: %v", err)
	}
	if !applied.EndDate.Equal(quote.EndDate) || !strings.HasSuffix(applied.QRPayload, "&tr=UPI-42") {
		t.Fatalf("unexpected apply result: %+v", applied)
	}
	applicationID := applied.ApplicationID

	contentType, body = applyBody(t, volunteerFormJSON(), `{"transactionId":"UPI-43","paidAt":"2025-03-09"}`, nil)
	resp, _ = doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected second pending application to conflict, got %d", resp.StatusCode)
	}

	resp, env = doRequest(t, http.MethodGet, server.URL+"/memberships/"+applicationID+"/attachments/idProof", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK || string(env.Data) != "content of passport.pdf" {
		t.Fatalf("expected attachment download, got %d %q", resp.StatusCode, env.Data)
	}

	resp, env = doRequest(t, http.MethodPost, server.URL+"/memberships/"+applicationID+"/approve", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK || env.Message != "Application approved" {
		t.Fatalf("expected approval, got %d: %+v", resp.StatusCode, env)
	}
	requireKeys(t, env.Data, "membershipId", "endDate")
	var approval approveResponse
	if err := json.Unmarshal(env.Data, &approval); err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	if approval.MembershipID != "GART-000001" || !approval.EndDate.Equal(applied.EndDate) {
		t.Fatalf("unexpected approval: %+v", approval)
	}

	resp, env = doRequest(t, http.MethodPost, server.URL+"/memberships/"+applicationID+"/approve", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK || env.Message != "Application was already approved" {
		t.Fatalf("expected idempotent approval, got %d: %+v", resp.StatusCode, env)
	}
	var repeated approveResponse
	if err := json.Unmarshal(env.Data, &repeated); err != nil || repeated.MembershipID != approval.MembershipID {
		t.Fatalf("expected the same membership back, got %s (err=%v)", env.Data, err)
	}

	resp, env = doRequest(t, http.MethodGet, server.URL+"/memberships/me/current", userToken, "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(env.Data), "GART-000001") {
		t.Fatalf("expected current membership, got %d %s", resp.StatusCode, env.Data)
	}
}

func TestHandlers_ApplyValidation(t *testing.T) {
	server := newTestServer(t)
	userToken := signToken(t, "user-1", "", time.Hour)

	contentType, body := applyBody(t, "{not json", "", nil)
	resp, env := doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	want := []string{"data must be a JSON object", "payment is required"}
	if !reflect.DeepEqual(env.Errors, want) {
		t.Fatalf("expected %v, got %v", want, env.Errors)
	}

	contentType, body = applyBody(t, `{"country":"India"}`, `{"transactionId":"UPI-1"}`, nil)
	resp, env = doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusBadRequest || len(env.Errors) < 2 {
		t.Fatalf("expected accumulated validation errors, got %d %v", resp.StatusCode, env.Errors)
	}

	contentType, body = applyBody(t, volunteerFormJSON(), `{"transactionId":"UPI-2","paidAt":"2025-03-09"}`,
		map[string]string{"idProof": "virus.exe"})
	resp, _ = doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected unsupported file type to be rejected, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, "application/json", strings.NewReader("{}"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected non-multipart body to be rejected, got %d", resp.StatusCode)
	}
}

func TestHandlers_AdminDecisions(t *testing.T) {
	server := newTestServer(t)
	userToken := signToken(t, "user-1", "", time.Hour)
	adminToken := signToken(t, "admin-1", "ADMIN", time.Hour)

	contentType, body := applyBody(t, volunteerFormJSON(), `{"transactionId":"UPI-7","paidAt":"2025-03-09"}`, nil)
	resp, env := doRequest(t, http.MethodPost, server.URL+"/memberships/apply", userToken, contentType, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected apply 201, got %d: %+v", resp.StatusCode, env)
	}
	var applied applyResponse
	if err := json.Unmarshal(env.Data, &applied); err != nil {
		t.Fatalf("decode apply result: %v", err)
	}
	base := server.URL + "/memberships/" + applied.ApplicationID

	resp, env = doRequest(t, http.MethodPost, base+"/reject", adminToken, "application/json", strings.NewReader(`{"reason":" "}`))
	if resp.StatusCode != http.StatusBadRequest || !reflect.DeepEqual(env.Errors, []string{"reason is required"}) {
		t.Fatalf("expected missing reason to be rejected, got %d %v", resp.StatusCode, env.Errors)
	}

	resp, _ = doRequest(t, http.MethodPost, base+"/review", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected review 200, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodPost, base+"/withdraw", signToken(t, "user-2", "", time.Hour), "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected withdraw by another user to be forbidden, got %d", resp.StatusCode)
	}

	resp, env = doRequest(t, http.MethodPost, base+"/reject", adminToken, "application/json", strings.NewReader(`{"reason":"Payment not received"}`))
	if resp.StatusCode != http.StatusOK || string(env.Data) != "{}" {
		t.Fatalf("expected reject 200 with empty data, got %d: %s", resp.StatusCode, env.Data)
	}

	resp, _ = doRequest(t, http.MethodPost, base+"/approve", adminToken, "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected approving a rejected application to conflict, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/memberships/does-not-exist", adminToken, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown application to be 404, got %d", resp.StatusCode)
	}

	resp, env = doRequest(t, http.MethodGet, server.URL+"/memberships?status=rejected&page=1&pageSize=10", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected list 200, got %d", resp.StatusCode)
	}
	var page app.ApplicationPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.PageSize != 10 {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/memberships?pageSize=zero", adminToken, "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid pageSize to be rejected, got %d", resp.StatusCode)
	}
}

func TestHandlers_MembershipTypes(t *testing.T) {
	server := newTestServer(t)
	adminToken := signToken(t, "admin-1", "admin", time.Hour)

	resp, env := doRequest(t, http.MethodGet, server.URL+"/membership-types", adminToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var types []map[string]any
	if err := json.Unmarshal(env.Data, &types); err != nil || len(types) != 4 {
		t.Fatalf("expected four membership types, got %s (err=%v)", env.Data, err)
	}

	resp, _ = doRequest(t, http.MethodPut, server.URL+"/membership-types/THERAPIST", adminToken, "application/json",
		strings.NewReader(`{"durationMonths":24}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected update 200, got %d", resp.StatusCode)
	}

	resp, env = doRequest(t, http.MethodPut, server.URL+"/membership-types/THERAPIST", adminToken, "application/json",
		strings.NewReader(`{"durationMonths":0}`))
	if resp.StatusCode != http.StatusBadRequest || !reflect.DeepEqual(env.Errors, []string{"durationMonths must be at least 1"}) {
		t.Fatalf("expected validation error, got %d %v", resp.StatusCode, env.Errors)
	}

	resp, _ = doRequest(t, http.MethodPut, server.URL+"/membership-types/GOLD", adminToken, "application/json",
		strings.NewReader(`{"name":"Gold"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown type to be 404, got %d", resp.StatusCode)
	}
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &app.ValidationError{Problems: []string{"x"}}, want: http.StatusBadRequest},
		{name: "rate limited", err: &app.RateLimitError{RetryAfterSeconds: 5}, want: http.StatusTooManyRequests},
		{name: "duplicate transaction", err: fmt.Errorf("create: %w", store.ErrDuplicateTransactionID), want: http.StatusConflict},
		{name: "active membership", err: app.ErrActiveMembershipExists, want: http.StatusConflict},
		{name: "invalid transition", err: app.ErrInvalidTransition, want: http.StatusConflict},
		{name: "application not found", err: store.ErrApplicationNotFound, want: http.StatusNotFound},
		{name: "forbidden", err: app.ErrForbidden, want: http.StatusForbidden},
		{name: "unsupported file", err: fmt.Errorf("store idProof: %w", filestore.ErrUnsupportedFileType), want: http.StatusBadRequest},
		{name: "unexpected", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got, _, _ := mapServiceError(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestWriteServiceError_SetsRetryAfter(t *testing.T) {
	h := &Handler{}
	rec := httptest.NewRecorder()
	h.writeServiceError(rec, &app.RateLimitError{RetryAfterSeconds: 17}, "apply")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "17" {
		t.Fatalf("expected Retry-After 17, got %q", got)
	}
}
