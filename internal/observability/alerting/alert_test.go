package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "SuiCoPilot/internal/errors"
)

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Channel() Channel { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("down")}
	d := NewFanout(rec, &LogNotifier{}, nil)

	err := d.Notify(context.Background(), FromError(xerrors.Persistence(errors.New("disk full"), "写入历史失败"), nil))
	if err == nil {
		t.Fatal("expected notifier error to surface")
	}
	if len(rec.events) != 1 || rec.events[0].Code != xerrors.CodePersistence {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got struct {
		Text  string `json:"text"`
		Event Event  `json:"event"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	event := Event{Code: xerrors.CodePersistence, Severity: xerrors.SeverityWarning, Message: "boom", UserID: "u-1"}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Event.UserID != "u-1" || got.Text != "[warning] PERSISTENCE: boom" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{}); err == nil {
		t.Fatal("expected non-2xx to fail")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured webhook must be skipped: %v", err)
	}
}
