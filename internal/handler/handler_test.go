package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campusaccess/internal/attendance"
	"campusaccess/internal/qrtoken"

	"github.com/gin-gonic/gin"
)

type memLedger struct {
	records []attendance.Record
}

func (l *memLedger) Append(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	rec.ID = fmt.Sprintf("rec-%d", len(l.records)+1)
	rec.CreatedAt = rec.Timestamp
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *memLedger) ByUser(_ context.Context, userID string) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, rec := range l.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedger) ByDate(_ context.Context, date string) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, rec := range l.records {
		if rec.Date == date {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedger) Recent(_ context.Context, limit int) ([]attendance.Record, error) {
	out := make([]attendance.Record, 0, limit)
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.records[i])
	}
	return out, nil
}

type memDirectory struct {
	names map[string]string
}

func (d *memDirectory) Lookup(_ context.Context, ids []string) (map[string]attendance.UserInfo, error) {
	out := make(map[string]attendance.UserInfo)
	for _, id := range ids {
		if name, ok := d.names[id]; ok {
			out[id] = attendance.UserInfo{Name: name, Email: id + "@college.edu"}
		}
	}
	return out, nil
}

type fixture struct {
	router *gin.Engine
	ledger *memLedger
	codec  *qrtoken.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec := qrtoken.NewCodec("test-secret")
	issuer := qrtoken.NewIssuer(codec, 5*time.Minute)
	ledger := &memLedger{}
	dir := &memDirectory{names: map[string]string{"u1": "Asha Verma"}}
	guard := attendance.NewMemoryReplayGuard()
	svc := attendance.NewService(codec, ledger, dir, guard, 5*time.Minute)

	h := New(issuer, svc, nil, nil, nil, nil, "http://localhost:8080", SessionConfig{})

	r := gin.New()
	admin := r.Group("/api/admin")
	admin.POST("/generate-qr", h.GenerateQR)
	admin.GET("/qr-image", h.QRImage)
	admin.POST("/record-attendance", h.RecordAttendance)
	admin.GET("/scan-attendance", h.ScanAttendance)
	admin.GET("/recent-attendance", h.RecentAttendance)
	admin.GET("/attendance/:userId", h.UserAttendance)

	return &fixture{router: r, ledger: ledger, codec: codec}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGenerateQRRequiresFields(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/generate-qr", map[string]string{"userId": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["success"] != false {
		t.Fatalf("success = %v, want false", resp["success"])
	}
}

func TestGenerateQRThenRecord(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/generate-qr", map[string]string{
		"userId": "u1", "role": "student", "type": "entry",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decodeJSON(t, w)
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("no token in response")
	}
	if scanURL, _ := resp["scanUrl"].(string); !strings.Contains(scanURL, "/api/admin/scan-attendance?token=") {
		t.Fatalf("scanUrl = %q", scanURL)
	}
	if len(f.ledger.records) != 0 {
		t.Fatalf("issuance wrote %d ledger records", len(f.ledger.records))
	}

	w = f.postJSON(t, "/api/admin/record-attendance", map[string]string{"token": token})
	if w.Code != http.StatusCreated {
		t.Fatalf("record status = %d, body %s", w.Code, w.Body.String())
	}
	resp = decodeJSON(t, w)
	if resp["message"] != "Entry recorded successfully" {
		t.Fatalf("message = %v", resp["message"])
	}
	if len(f.ledger.records) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(f.ledger.records))
	}
	rec := f.ledger.records[0]
	if rec.UserID != "u1" || rec.Type != qrtoken.Entry || rec.Location != "Main Gate" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestRecordAttendanceRejectsGarbageToken(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/record-attendance", map[string]string{"token": "garbage"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["message"] != "Invalid or expired token" {
		t.Fatalf("message = %v", resp["message"])
	}
	if len(f.ledger.records) != 0 {
		t.Fatal("garbage token reached the ledger")
	}
}

func TestRecordAttendanceRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)

	past := time.Now().Add(-10 * time.Minute)
	token, err := f.codec.Sign(qrtoken.Payload{
		UserID:    "u1",
		Role:      qrtoken.RoleStudent,
		Type:      qrtoken.Entry,
		IssuedAt:  past.UnixMilli(),
		ExpiresAt: past.Add(5 * time.Minute).UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := f.postJSON(t, "/api/admin/record-attendance", map[string]string{"token": token})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeJSON(t, w); resp["message"] != "Token expired" {
		t.Fatalf("message = %v", resp["message"])
	}
}

func TestRecordAttendanceRejectsReplay(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/generate-qr", map[string]string{
		"userId": "u1", "role": "student", "type": "exit",
	})
	token, _ := decodeJSON(t, w)["token"].(string)

	if w := f.postJSON(t, "/api/admin/record-attendance", map[string]string{"token": token}); w.Code != http.StatusCreated {
		t.Fatalf("first redemption status = %d", w.Code)
	}
	w = f.postJSON(t, "/api/admin/record-attendance", map[string]string{"token": token})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d, want 400", w.Code)
	}
	if resp := decodeJSON(t, w); resp["message"] != "Token already used" {
		t.Fatalf("message = %v", resp["message"])
	}
	if len(f.ledger.records) != 1 {
		t.Fatalf("ledger has %d records after replay, want 1", len(f.ledger.records))
	}
}

func TestRecordAttendanceDirectMode(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/record-attendance", map[string]string{
		"userId": "u2", "type": "entry", "location": "Library",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if rec := f.ledger.records[0]; rec.Location != "Library" || rec.UserID != "u2" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestScanAttendanceRendersConfirmation(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/generate-qr", map[string]string{
		"userId": "u1", "role": "student", "type": "entry",
	})
	token, _ := decodeJSON(t, w)["token"].(string)

	w = f.get("/api/admin/scan-attendance?token=" + token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"Attendance Recorded", "Asha Verma", "entry", "Success!"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if rec := f.ledger.records[0]; rec.Location != "QR Scan" {
		t.Fatalf("scan location = %q", rec.Location)
	}
}

func TestScanAttendanceMissingToken(t *testing.T) {
	f := newFixture(t)

	w := f.get("/api/admin/scan-attendance")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Missing token") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestQRImageReturnsPNG(t *testing.T) {
	f := newFixture(t)

	w := f.postJSON(t, "/api/admin/generate-qr", map[string]string{
		"userId": "u1", "role": "student", "type": "entry",
	})
	token, _ := decodeJSON(t, w)["token"].(string)

	w = f.get("/api/admin/qr-image?token=" + token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body is not a PNG")
	}
}

func TestRecentAttendanceEnrichesUsers(t *testing.T) {
	f := newFixture(t)

	for _, req := range []map[string]string{
		{"userId": "u1", "type": "entry"},
		{"userId": "ghost", "type": "entry"},
	} {
		if w := f.postJSON(t, "/api/admin/record-attendance", req); w.Code != http.StatusCreated {
			t.Fatalf("seed record failed: %d", w.Code)
		}
	}

	w := f.get("/api/admin/recent-attendance?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Attendance []attendance.EnrichedRecord `json:"attendance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Attendance) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.Attendance))
	}
	// Newest first: the ghost record was appended last.
	if resp.Attendance[0].UserName != "Unknown User" {
		t.Fatalf("UserName = %q, want Unknown User", resp.Attendance[0].UserName)
	}
	if resp.Attendance[1].UserName != "Asha Verma" {
		t.Fatalf("UserName = %q", resp.Attendance[1].UserName)
	}
}

func TestUserAttendanceHistory(t *testing.T) {
	f := newFixture(t)

	for _, typ := range []string{"entry", "exit"} {
		f.postJSON(t, "/api/admin/record-attendance", map[string]string{"userId": "u1", "type": typ})
	}
	f.postJSON(t, "/api/admin/record-attendance", map[string]string{"userId": "u2", "type": "entry"})

	w := f.get("/api/admin/attendance/u1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeJSON(t, w)
	if count, _ := resp["count"].(float64); count != 2 {
		t.Fatalf("count = %v, want 2", resp["count"])
	}
}
