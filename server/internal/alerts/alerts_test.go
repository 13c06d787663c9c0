package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vitalstream/vitalstream/server/internal/config"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*Alert
	err  error
	wait chan struct{}
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Send(_ context.Context, a *Alert) error {
	if f.wait != nil {
		<-f.wait
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotify_DeliversToAllNotifiers(t *testing.T) {
	a, b := &fakeNotifier{}, &fakeNotifier{}
	d := NewDispatcher(0, 10, a, b)

	d.Notify(1, "p1", []string{"Fever — possible infection"}, "Critical Alert: fever")
	d.Close()

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("deliveries: a=%d b=%d, want 1 each", a.count(), b.count())
	}
	if got := a.sent[0]; got.RecordID != 1 || got.PatientID != "p1" || got.Message != "Critical Alert: fever" {
		t.Errorf("alert: got %+v", got)
	}
}

func TestNotify_DoesNotBlockOnSlowNotifier(t *testing.T) {
	slow := &fakeNotifier{wait: make(chan struct{})}
	d := NewDispatcher(0, 10, slow)

	done := make(chan struct{})
	go func() {
		d.Notify(1, "p1", []string{"x"}, "msg")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on notifier")
	}
	close(slow.wait)
	d.Close()
}

func TestNotify_FailureIsSuppressed(t *testing.T) {
	failing := &fakeNotifier{err: errors.New("boom")}
	d := NewDispatcher(0, 10, failing)

	d.Notify(1, "p1", []string{"x"}, "msg")
	d.Close()

	if failing.count() != 1 {
		t.Errorf("attempts: got %d, want 1", failing.count())
	}
	if n := len(d.Recent()); n != 1 {
		t.Errorf("history: got %d, want 1", n)
	}
}

type panicNotifier struct{}

func (panicNotifier) Name() string                       { return "panic" }
func (panicNotifier) Send(context.Context, *Alert) error { panic("unexpected") }

func TestNotify_PanicIsContained(t *testing.T) {
	d := NewDispatcher(0, 10, panicNotifier{})
	d.Notify(1, "p1", []string{"x"}, "msg")
	d.Close()
}

func TestNotify_CooldownPerPatient(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(time.Minute, 10, n)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d.now = func() time.Time { return base }
	d.Notify(1, "p1", []string{"x"}, "m1")
	d.Notify(2, "p2", []string{"x"}, "m2") // other patient, not suppressed

	d.now = func() time.Time { return base.Add(30 * time.Second) }
	d.Notify(3, "p1", []string{"x"}, "m3") // within cooldown

	d.now = func() time.Time { return base.Add(2 * time.Minute) }
	d.Notify(4, "p1", []string{"x"}, "m4")
	d.Close()

	if n.count() != 3 {
		t.Errorf("deliveries: got %d, want 3", n.count())
	}
	recent := d.Recent()
	if len(recent) != 4 {
		t.Fatalf("history: got %d, want 4", len(recent))
	}
	if recent[0].RecordID != 4 {
		t.Errorf("Recent[0].RecordID: got %d, want 4 (newest first)", recent[0].RecordID)
	}
	if !recent[1].Suppressed || recent[1].RecordID != 3 {
		t.Errorf("Recent[1]: got %+v, want suppressed record 3", recent[1])
	}
}

func TestRecent_HistoryBounded(t *testing.T) {
	d := NewDispatcher(0, 3)
	for i := int64(1); i <= 5; i++ {
		d.Notify(i, "p", []string{"x"}, "m")
	}
	recent := d.Recent()
	if len(recent) != 3 {
		t.Fatalf("history: got %d, want 3", len(recent))
	}
	if recent[0].RecordID != 5 || recent[2].RecordID != 3 {
		t.Errorf("history ids: got %d..%d, want 5..3", recent[0].RecordID, recent[2].RecordID)
	}
}

func TestTwilio_SendsFormWithBasicAuth(t *testing.T) {
	var (
		gotPath, gotUser, gotPass string
		gotForm                   map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		r.ParseForm() //nolint:errcheck
		gotForm = map[string]string{
			"From": r.PostForm.Get("From"),
			"To":   r.PostForm.Get("To"),
			"Body": r.PostForm.Get("Body"),
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	t.Setenv("TW_SID", "AC42")
	t.Setenv("TW_TOKEN", "secret")
	tw := NewTwilio(resty.New(), config.TwilioConfig{
		AccountSIDEnv: "TW_SID",
		AuthTokenEnv:  "TW_TOKEN",
		From:          "whatsapp:+14155238886",
		To:            "whatsapp:+10000000000",
		BaseURL:       srv.URL + "/",
	})

	err := tw.Send(context.Background(), &Alert{Message: "Critical Alert: fever"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC42/Messages.json" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotUser != "AC42" || gotPass != "secret" {
		t.Errorf("basic auth: got %q/%q", gotUser, gotPass)
	}
	if gotForm["From"] != "whatsapp:+14155238886" || gotForm["To"] != "whatsapp:+10000000000" {
		t.Errorf("addresses: got %v", gotForm)
	}
	if gotForm["Body"] != "Critical Alert: fever" {
		t.Errorf("Body: got %q", gotForm["Body"])
	}
}

func TestTwilio_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"auth"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tw := NewTwilio(resty.New(), config.TwilioConfig{From: "a", To: "b", BaseURL: srv.URL})
	if err := tw.Send(context.Background(), &Alert{Message: "m"}); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}

func TestWebhook_SlackPayload(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(resty.New(), "slack", srv.URL)
	if err := wh.Send(context.Background(), &Alert{Message: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if body["text"] != "*[CRITICAL]* hello" {
		t.Errorf("text: got %q", body["text"])
	}
	if wh.Name() != "webhook:slack" {
		t.Errorf("Name: got %q", wh.Name())
	}
}

func TestWebhook_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(resty.New(), "http", srv.URL)
	if err := wh.Send(context.Background(), &Alert{Message: "m"}); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

func TestBuild_SkipsUnresolvedTargets(t *testing.T) {
	t.Setenv("TEST_HOOK_URL", "http://example.invalid/hook")
	cfg := config.AlertsConfig{
		Twilio: config.TwilioConfig{AccountSIDEnv: "TEST_UNSET_SID", From: "a", To: "b"},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "TEST_HOOK_URL"},
			{Type: "teams", URLEnv: "TEST_UNSET_HOOK"},
		},
	}
	ns := Build(cfg, resty.New())
	if len(ns) != 1 || ns[0].Name() != "webhook:slack" {
		names := make([]string, 0, len(ns))
		for _, n := range ns {
			names = append(names, n.Name())
		}
		t.Errorf("notifiers: got %v, want [webhook:slack]", names)
	}
}

func TestClose_ConcurrentNotify(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(0, 100, n)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 50; i++ {
			d.Notify(i, "p1", []string{"x"}, "msg")
		}
	}()
	d.Close()
	<-done
	d.Close()

	if got := len(d.Recent()); got != 50 {
		t.Errorf("history: got %d, want 50", got)
	}
	if n.count() > 50 {
		t.Errorf("deliveries: got %d, want at most 50", n.count())
	}
}

func TestNotify_AfterCloseNotDelivered(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(0, 10, n)
	d.Close()

	d.Notify(1, "p1", []string{"x"}, "msg")
	d.Close()

	if n.count() != 0 {
		t.Errorf("deliveries after Close: got %d, want 0", n.count())
	}
	if recent := d.Recent(); len(recent) != 1 || recent[0].RecordID != 1 {
		t.Errorf("history: got %+v, want record 1", recent)
	}
}
