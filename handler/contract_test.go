package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/config"
	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/contractpdf"
	"github.com/Ampplex/InfluencerFlow-sub001/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (b *testBlobs) Upload(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bucket unavailable")
	}
	b.objects[key] = data
	return nil
}

func (b *testBlobs) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (b *testBlobs) PublicURL(key string) string {
	return "http://blobs.test/contracts/" + key
}

func (b *testBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *service.MemoryStore
	blobs  *testBlobs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{Requests: 1000, WindowSeconds: 60},
	}
	store := service.NewMemoryStore()
	blobs := &testBlobs{objects: map[string][]byte{}}

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	svc := service.NewContractService(store, blobs, contractpdf.NewRenderer(time.Second),
		service.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
	)

	return &testServer{
		router: NewRouter(cfg, NewContractHandler(svc)),
		store:  store,
		blobs:  blobs,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any, token string) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func signRequest(t *testing.T, fields map[string]string, file []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="signature_file"; filename="signature"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("Failed to create part: %v", err)
		}
		part.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/contracts/sign", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer session-token")
	return req
}

// noisePNG encodes random pixels so the file lands near 10 KB
func noisePNG(t *testing.T) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for x := 0; x < 50; x++ {
		for y := 0; y < 50; y++ {
			img.Set(x, y, color.RGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func generateBody() map[string]any {
	return map[string]any{
		"influencer_id":   "inf-1",
		"brand_id":        "brand-1",
		"influencer_name": "Ana Souza",
		"brand_name":      "Acme Coffee",
		"rate":            1000,
		"timeline":        "2 weeks",
		"deliverables":    "1 reel, 2 stories",
		"payment_terms":   "Net 30",
	}
}

func decodeContract(t *testing.T, w *httptest.ResponseRecorder) model.Contract {
	t.Helper()
	var c model.Contract
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return c
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse error body %q: %v", w.Body.String(), err)
	}
	if len(body) != 1 {
		t.Errorf("Expected only an error field, got %v", body)
	}
	return body["error"]
}

func TestPreview(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(jsonRequest("POST", "/api/contracts/preview", generateBody(), ""))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("Expected a PDF body")
	}
	if srv.store.Count() != 0 {
		t.Error("Expected preview to store nothing")
	}
}

func TestPreviewErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{"missing influencer name", map[string]any{"brand_name": "Acme"}, http.StatusInternalServerError},
		{"missing both names", map[string]any{"rate": 10}, http.StatusInternalServerError},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(jsonRequest("POST", "/api/contracts/preview", tt.body, ""))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if errorMessage(t, w) == "" {
				t.Error("Expected an error message")
			}
		})
	}
	if srv.store.Count() != 0 {
		t.Error("Expected no writes on failed previews")
	}
}

func TestGenerateRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(jsonRequest("POST", "/api/contracts/generate", generateBody(), ""))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if srv.store.Count() != 0 {
		t.Error("Expected no contract without a token")
	}
}

func TestGenerateValidation(t *testing.T) {
	srv := newTestServer(t)

	for _, field := range []string{"influencer_id", "brand_id"} {
		t.Run(field, func(t *testing.T) {
			body := generateBody()
			delete(body, field)

			w := srv.do(jsonRequest("POST", "/api/contracts/generate", body, "tok"))

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if msg := errorMessage(t, w); msg != field+" is required" {
				t.Errorf("Expected '%s is required', got '%s'", field, msg)
			}
		})
	}
}

func TestGenerateUploadFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.blobs.fail = true

	w := srv.do(jsonRequest("POST", "/api/contracts/generate", generateBody(), "tok"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Failed to upload contract PDF" {
		t.Errorf("Unexpected message '%s'", msg)
	}
	if srv.store.Count() != 0 {
		t.Error("Expected the new row to be removed again")
	}
}

func TestContractLifecycle(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(jsonRequest("POST", "/api/contracts/generate", generateBody(), "tok"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeContract(t, w)
	if created.Status != model.StatusPendingSignature {
		t.Errorf("Expected PENDING_SIGNATURE, got %s", created.Status)
	}
	if created.ContractData.Rate != 1000 {
		t.Errorf("Expected rate 1000, got %v", created.ContractData.Rate)
	}
	if !strings.HasSuffix(created.ContractURL, "contracts/"+created.ID+".pdf") {
		t.Errorf("Unexpected contract url %s", created.ContractURL)
	}
	if _, ok := srv.blobs.objects[service.UnsignedKey(created.ID)]; !ok {
		t.Error("Expected the contract PDF to be resolvable in the blob store")
	}

	sig := noisePNG(t)
	w = srv.do(signRequest(t, map[string]string{"contract_id": created.ID, "user_id": "user-x"}, sig, "image/png"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	signed := decodeContract(t, w)
	if signed.Status != model.StatusSigned {
		t.Errorf("Expected SIGNED, got %s", signed.Status)
	}
	if signed.SignedBy == nil || *signed.SignedBy != "user-x" {
		t.Error("Expected signed_by user-x")
	}
	if signed.ContractURL == created.ContractURL || !strings.HasSuffix(signed.ContractURL, "_signed.pdf") {
		t.Errorf("Expected signed contract url, got %s", signed.ContractURL)
	}

	// second signing is a client error and changes nothing
	w = srv.do(signRequest(t, map[string]string{"contract_id": created.ID, "user_id": "user-y"}, sig, "image/png"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for second sign, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Contract is already signed" {
		t.Errorf("Unexpected message '%s'", msg)
	}

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/contracts/"+created.ID, nil)
		req.Header.Set("Authorization", "Bearer tok")
		return srv.do(req)
	}
	first, second := get(), get()
	if first.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", first.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("Expected repeated GETs to return identical bodies")
	}
	fetched := decodeContract(t, first)
	if !fetched.SignedAt.Equal(*signed.SignedAt) || *fetched.SignatureURL != *signed.SignatureURL {
		t.Error("Expected signing fields from the first sign to persist")
	}
}

func TestSignErrors(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(jsonRequest("POST", "/api/contracts/generate", generateBody(), "tok"))
	id := decodeContract(t, w).ID
	fields := map[string]string{"contract_id": id, "user_id": "user-x"}

	tests := []struct {
		name           string
		fields         map[string]string
		file           []byte
		contentType    string
		expectedStatus int
	}{
		{"gif rejected", fields, []byte("GIF89a......"), "image/gif", http.StatusBadRequest},
		{"png with wrong bytes", fields, []byte("definitely not png"), "image/png", http.StatusBadRequest},
		{"too large", fields, append([]byte{0x89, 0x50, 0x4E, 0x47}, make([]byte, service.MaxSignatureBytes)...), "image/png", http.StatusBadRequest},
		{"missing file", fields, nil, "", http.StatusBadRequest},
		{"missing user", map[string]string{"contract_id": id}, noisePNG(t), "image/png", http.StatusBadRequest},
		{"unknown contract", map[string]string{"contract_id": "nope", "user_id": "user-x"}, noisePNG(t), "image/png", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(signRequest(t, tt.fields, tt.file, tt.contentType))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			errorMessage(t, w)
		})
	}

	current, _ := srv.store.Get(context.Background(), id)
	if current.Status != model.StatusPendingSignature {
		t.Errorf("Expected contract untouched, got %s", current.Status)
	}
}

func TestSignRequiresMultipart(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(jsonRequest("POST", "/api/contracts/sign", map[string]string{"contract_id": "x"}, "tok"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/contracts/missing", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := srv.do(req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Contract not found" {
		t.Errorf("Unexpected message '%s'", msg)
	}
}

func TestList(t *testing.T) {
	srv := newTestServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		w := srv.do(jsonRequest("POST", "/api/contracts/generate", generateBody(), "tok"))
		ids = append(ids, decodeContract(t, w).ID)
	}

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedIDs    []string
	}{
		{"brand newest first", "?user_id=brand-1&role=brand", http.StatusOK, []string{ids[2], ids[1], ids[0]}},
		{"influencer", "?user_id=inf-1&role=influencer", http.StatusOK, []string{ids[2], ids[1], ids[0]}},
		{"no matches", "?user_id=brand-9&role=brand", http.StatusOK, []string{}},
		{"bad role", "?user_id=brand-1&role=admin", http.StatusBadRequest, nil},
		{"missing user", "?role=brand", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/contracts"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer tok")
			w := srv.do(req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedIDs == nil {
				return
			}

			var contracts []model.Contract
			if err := json.Unmarshal(w.Body.Bytes(), &contracts); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if contracts == nil {
				t.Fatal("Expected a JSON array, got null")
			}
			if len(contracts) != len(tt.expectedIDs) {
				t.Fatalf("Expected %d contracts, got %d", len(tt.expectedIDs), len(contracts))
			}
			for i, c := range contracts {
				if c.ID != tt.expectedIDs[i] {
					t.Errorf("Position %d: expected %s, got %s", i, tt.expectedIDs[i], c.ID)
				}
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		w := srv.do(httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}
}
