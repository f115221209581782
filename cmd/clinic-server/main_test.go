package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/console/internal/config"
	"github.com/clinicops/console/internal/platform/db"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		ClinicTimezone: "UTC",
		SlotDuration:   60,
		SlotSearchDays: 60,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T) (*app, *echo.Echo) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, memoryConfig(), zerolog.Nop())
	if err != nil {
		cancel()
		t.Fatalf("newApp: %v", err)
	}
	a.start(ctx)
	t.Cleanup(func() {
		cancel()
		a.dispatcher.Wait()
		a.close()
	})
	return a, a.echo()
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestRootCmd_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "slots": false}
	for _, c := range rootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %q command", name)
		}
	}
}

func TestRootCmd_MissingEnvFile(t *testing.T) {
	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"slots", "next", "--psychologist", "psy-1", "--env-file", "/nonexistent/.env"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "/nonexistent/.env") {
		t.Fatalf("err = %v", err)
	}
}

func TestSlotsNext_RequiresPsychologist(t *testing.T) {
	root := rootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"slots", "next"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "--psychologist") {
		t.Fatalf("err = %v", err)
	}
}

func TestMigrationsFS_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS(""), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) < 2 || names[0] != "001_scheduling.sql" {
		t.Errorf("migrations = %v", names)
	}
}

func TestPrintStatuses(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatuses(&buf, []db.MigrationStatus{
		{Version: 1, Name: "scheduling", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "patients"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("output:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-10-01 12:30:00") {
		t.Errorf("line = %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("line = %q", lines[3])
	}
}

func TestNewLogger(t *testing.T) {
	// Both variants must be usable; only the writer differs.
	devLogger := newLogger("development")
	devLogger.Debug().Msg("dev")
	prodLogger := newLogger("production")
	prodLogger.Debug().Msg("prod")
}

// ---------------------------------------------------------------------------
// Assembled server, in-memory mode
// ---------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	_, e := newTestServer(t)

	rec := do(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"0.1.0"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers not applied")
	}

	rec = do(t, e, http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "memory") {
		t.Errorf("health/db = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DeactivationCascade(t *testing.T) {
	a, e := newTestServer(t)
	future := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")

	rec := do(t, e, http.MethodPost, "/api/v1/patients", `{"name":"Ana Souza","cpf":"529.982.247-25"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient = %d %s", rec.Code, rec.Body.String())
	}
	var p struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	decode(t, rec, &p)
	if !p.Active {
		t.Fatal("new patient should be active")
	}

	book := `{"patient_id":"` + p.ID + `","psychologist_id":"psy-1","date":"` + future + `","start_time":"09:00","end_time":"10:00"}`
	rec = do(t, e, http.MethodPost, "/api/v1/appointments", book)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book = %d %s", rec.Code, rec.Body.String())
	}
	var appt struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, rec, &appt)

	rec = do(t, e, http.MethodPost, "/api/v1/appointments", book)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double booking = %d", rec.Code)
	}

	rec = do(t, e, http.MethodPost, "/api/v1/patients/"+p.ID+"/deactivate", `{"reason":"moved away"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate = %d %s", rec.Code, rec.Body.String())
	}
	var deact struct {
		Cancelled []struct {
			ID string `json:"id"`
		} `json:"cancelled"`
	}
	decode(t, rec, &deact)
	if len(deact.Cancelled) != 1 || deact.Cancelled[0].ID != appt.ID {
		t.Fatalf("cancelled = %+v", deact.Cancelled)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/appointments/"+appt.ID, "")
	decode(t, rec, &appt)
	if appt.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", appt.Status)
	}

	// The freed slot can be booked again.
	book = strings.Replace(book, p.ID, "pat-2", 1)
	if rec := do(t, e, http.MethodPost, "/api/v1/appointments", book); rec.Code != http.StatusCreated {
		t.Errorf("rebook = %d %s", rec.Code, rec.Body.String())
	}

	titles := map[string]bool{}
	for _, ev := range a.dispatcher.Feed().Recent(50) {
		titles[ev.Title] = true
	}
	for _, want := range []string{"Patient registered", "Appointment booked", "Patient deactivated", "Appointments cancelled"} {
		if !titles[want] {
			t.Errorf("feed missing %q (have %v)", want, titles)
		}
	}

	rec = do(t, e, http.MethodGet, "/api/v1/notifications?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Errorf("notifications = %d", rec.Code)
	}
}

func TestServer_WorkingHoursAndNextSlot(t *testing.T) {
	_, e := newTestServer(t)

	var windows []string
	for d := 0; d < 7; d++ {
		windows = append(windows, `{"day_of_week":`+string(rune('0'+d))+`,"start_time":"00:00","end_time":"23:59"}`)
	}
	rec := do(t, e, http.MethodPut, "/api/v1/psychologists/psy-1/working-hours", `{"windows":[`+strings.Join(windows, ",")+`]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("working hours = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/api/v1/psychologists/psy-1/next-slot", "")
	var resp struct {
		Found bool `json:"found"`
	}
	decode(t, rec, &resp)
	if !resp.Found {
		t.Errorf("next slot = %s", rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/api/v1/psychologists/psy-unknown/next-slot", "")
	decode(t, rec, &resp)
	if resp.Found {
		t.Error("psychologist without working hours must have no slot")
	}
}

func TestServer_InvalidCPFRejected(t *testing.T) {
	_, e := newTestServer(t)
	rec := do(t, e, http.MethodPost, "/api/v1/patients", `{"name":"Ana","cpf":"111.111.111-11"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	_, e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("request id = %q", got)
	}
}
