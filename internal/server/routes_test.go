package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v; body: %s", err, w.Body.String())
	}
	return resp
}

func seed(t *testing.T, srv *Server) {
	t.Helper()
	w := do(t, srv, "POST", "/api/contacts", `{"id":"ana","name":"Ana","tags":["family"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create contact: status = %d; body: %s", w.Code, w.Body.String())
	}
	w = do(t, srv, "POST", "/api/rules", `{"id":"inactive","type":"inactivity","enabled":true,"config":{"inactivityDays":30}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add rule: status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestCreateAndListContacts(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/contacts", `{"name":"Ben"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	created := decode(t, w)
	if created["id"] == "" || created["id"] == nil {
		t.Error("expected an assigned id")
	}

	w = do(t, srv, "GET", "/api/contacts", "")
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
}

func TestCreateContactValidation(t *testing.T) {
	srv := testServer(t)

	if w := do(t, srv, "POST", "/api/contacts", `{"id":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := do(t, srv, "POST", "/api/contacts", "not json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogInteractionAndScore(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	body := `{"timestamp":"2026-06-15T10:00:00Z","duration":30,"notes":"Called to plan the trip"}`
	w := do(t, srv, "POST", "/api/contacts/ana/interactions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	logged := decode(t, w)
	if logged["type"] != "call" {
		t.Errorf("type = %v, want call", logged["type"])
	}
	if q, _ := logged["quality"].(float64); q <= 75 {
		t.Errorf("quality = %v, want extractor score above the call base", logged["quality"])
	}
	signals, ok := logged["signals"].(map[string]any)
	if !ok {
		t.Fatalf("signals missing from response: %v", logged)
	}
	tags := map[string]bool{}
	for _, tag := range signals["context_tags"].([]any) {
		tags[tag.(string)] = true
	}
	for _, want := range []string{"type:call", "time:business-hours", "duration:medium"} {
		if !tags[want] {
			t.Errorf("context_tags = %v, missing %s", signals["context_tags"], want)
		}
	}
	if c, _ := signals["confidence"].(float64); c < 0.85 {
		t.Errorf("confidence = %v, want about 0.9 with notes and duration", signals["confidence"])
	}
	if signals["quality_score"] != logged["quality"] {
		t.Errorf("quality_score = %v, want %v", signals["quality_score"], logged["quality"])
	}

	w = do(t, srv, "GET", "/api/contacts/ana/score", "")
	if w.Code != http.StatusOK {
		t.Fatalf("score status = %d; body: %s", w.Code, w.Body.String())
	}
	score := decode(t, w)
	if r, _ := score["recency"].(float64); r < 99 {
		t.Errorf("recency = %v, want > 99 two hours after contact", score["recency"])
	}
}

func TestLogInteractionErrors(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown contact", "/api/contacts/ghost/interactions", `{"type":"call"}`, http.StatusNotFound},
		{"unknown type", "/api/contacts/ana/interactions", `{"type":"fax"}`, http.StatusBadRequest},
		{"quality out of range", "/api/contacts/ana/interactions", `{"type":"call","quality":101}`, http.StatusBadRequest},
		{"negative duration", "/api/contacts/ana/interactions", `{"type":"call","duration":-5}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := do(t, srv, "POST", tc.path, tc.body); w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d; body: %s", tc.name, w.Code, tc.want, w.Body.String())
		}
	}

	if w := do(t, srv, "GET", "/api/contacts/ghost/score", ""); w.Code != http.StatusNotFound {
		t.Errorf("score for unknown contact: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAddRuleInvalidConfig(t *testing.T) {
	srv := testServer(t)

	bodies := []string{
		`{"type":"inactivity","config":{"inactivityDays":0}}`,
		`{"type":"date","config":{}}`,
		`{"type":"weekly","config":{}}`,
		`{"type":"decay","config":{"scoreThreshold":140}}`,
	}
	for _, b := range bodies {
		w := do(t, srv, "POST", "/api/rules", b)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want %d", b, w.Code, http.StatusUnprocessableEntity)
			continue
		}
		if resp := decode(t, w); resp["code"] != "INVALID_RULE_CONFIG" {
			t.Errorf("%s: code = %v", b, resp["code"])
		}
	}

	w := do(t, srv, "GET", "/api/rules", "")
	if resp := decode(t, w); resp["count"] != float64(0) {
		t.Errorf("rejected rules were stored: %v", resp["count"])
	}
}

func TestEvaluateLifecycle(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	// Dry run reports without storing.
	w := do(t, srv, "POST", "/api/evaluate?dry_run=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dry run status = %d; body: %s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["count"] != float64(1) {
		t.Fatalf("dry run count = %v, want 1", resp["count"])
	}
	if resp := decode(t, do(t, srv, "GET", "/api/reminders", "")); resp["count"] != float64(0) {
		t.Fatalf("dry run stored reminders: %v", resp["count"])
	}

	w = do(t, srv, "POST", "/api/evaluate", "")
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Fatalf("evaluate count = %v, want 1", resp["count"])
	}
	reminder := resp["reminders"].([]any)[0].(map[string]any)
	id := reminder["id"].(string)
	if !strings.Contains(reminder["message"].(string), "Ana") {
		t.Errorf("message = %v, want the contact name", reminder["message"])
	}

	// Cooldown holds on the second run.
	if resp := decode(t, do(t, srv, "POST", "/api/evaluate", "")); resp["count"] != float64(0) {
		t.Errorf("second evaluate count = %v, want 0", resp["count"])
	}

	pending := decode(t, do(t, srv, "GET", "/api/reminders?status=pending", ""))
	if pending["count"] != float64(1) {
		t.Errorf("pending count = %v, want 1", pending["count"])
	}

	w = do(t, srv, "POST", "/api/reminders/"+id+"/sent", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sent status = %d; body: %s", w.Code, w.Body.String())
	}
	if sent := decode(t, w); sent["status"] != "sent" || sent["sent_at"] == nil {
		t.Errorf("sent reminder = %v", sent)
	}

	w = do(t, srv, "POST", "/api/reminders/"+id+"/dismiss", "")
	if dismissed := decode(t, w); dismissed["status"] != "dismissed" {
		t.Errorf("status = %v, want dismissed", dismissed["status"])
	}

	// Dismissal lifts the cooldown.
	if resp := decode(t, do(t, srv, "POST", "/api/evaluate", "")); resp["count"] != float64(1) {
		t.Errorf("evaluate after dismiss count = %v, want 1", resp["count"])
	}
}

func TestReminderRouteErrors(t *testing.T) {
	srv := testServer(t)

	if w := do(t, srv, "GET", "/api/reminders?status=snoozed", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := do(t, srv, "POST", "/api/reminders/missing/dismiss", ""); w.Code != http.StatusNotFound {
		t.Errorf("dismiss missing: status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := do(t, srv, "POST", "/api/reminders/missing/sent", ""); w.Code != http.StatusNotFound {
		t.Errorf("sent missing: status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := do(t, srv, "POST", "/api/evaluate?dry_run=maybe", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad dry_run: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
