package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testBotToken = "42:test-token"

// telegramStub stands in for the Bot API endpoint. The endpoint template
// mirrors tgbotapi.APIEndpoint ("…/bot%s/%s").
func telegramStub(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	n := NewTelegram(testBotToken, ts.URL+"/bot%s/%s", 2*time.Second)
	return n, ts
}

func TestSendDelivered(t *testing.T) {
	var gotPath string
	n, ts := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1714000000,"chat":{"id":12345},"text":"hi"}}`))
	})
	defer ts.Close()

	res := n.Send("12345", "hi", nil)
	if res.Outcome != Delivered {
		t.Fatalf("expected delivered, got %s (err %v)", res.Outcome, res.Err)
	}
	if gotPath != "/bot"+testBotToken+"/sendMessage" {
		t.Errorf("unexpected request path %s", gotPath)
	}
}

func TestSendRejectedByTarget(t *testing.T) {
	n, ts := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})
	defer ts.Close()

	res := n.Send("12345", "hi", nil)
	if res.Outcome != Rejected {
		t.Fatalf("expected rejected, got %s (err %v)", res.Outcome, res.Err)
	}
	if res.Err == nil {
		t.Error("expected diagnostic error for rejected delivery")
	}
}

func TestSendTransportError(t *testing.T) {
	n, ts := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {})
	ts.Close() // unreachable endpoint

	res := n.Send("12345", "hi", nil)
	if res.Outcome != TransportError {
		t.Fatalf("expected transport_error, got %s (err %v)", res.Outcome, res.Err)
	}
	if res.Err == nil {
		t.Error("expected diagnostic error for transport failure")
	}
}

func TestSendUnconfigured(t *testing.T) {
	n := NewTelegram("", "", 0)
	res := n.Send("12345", "hi", nil)
	if res.Outcome != Unconfigured {
		t.Fatalf("expected unconfigured, got %s", res.Outcome)
	}
	if res.Err != nil {
		t.Errorf("unconfigured notifier should carry no error, got %v", res.Err)
	}
}

func TestSendNonNumericChatRejected(t *testing.T) {
	n, ts := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the endpoint for a bad chat id")
	})
	defer ts.Close()

	res := n.Send("not-a-chat", "hi", nil)
	if res.Outcome != Rejected {
		t.Fatalf("expected rejected, got %s", res.Outcome)
	}
}

func TestSendWithButtons(t *testing.T) {
	var sawMarkup bool
	n, ts := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err == nil && r.PostFormValue("reply_markup") != "" {
			sawMarkup = true
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":8,"date":1714000000,"chat":{"id":12345},"text":"hi"}}`))
	})
	defer ts.Close()

	res := n.Send("12345", "hi", []Button{{Label: "Open", URL: "https://example.com"}})
	if res.Outcome != Delivered {
		t.Fatalf("expected delivered, got %s (err %v)", res.Outcome, res.Err)
	}
	if !sawMarkup {
		t.Error("expected reply_markup in the outbound request")
	}
}
