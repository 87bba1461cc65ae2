package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

type sentSubscription struct {
	ToUser           string `json:"touser"`
	TemplateID       string `json:"template_id"`
	Page             string `json:"page"`
	MiniprogramState string `json:"miniprogram_state"`
	Lang             string `json:"lang"`
	Data             map[string]struct {
		Value string `json:"value"`
	} `json:"data"`
}

type fakeWeChat struct {
	tokenCalls atomic.Int32
	sendCalls  atomic.Int32
	sendCode   int

	mu       sync.Mutex
	lastSend sentSubscription
}

func (f *fakeWeChat) handler(t *testing.T) http.Handler {
	token := func(w http.ResponseWriter, appID, secret string) {
		f.tokenCalls.Add(1)
		if appID != "app" || secret != "secret" {
			_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 40013, "errmsg": "invalid appid"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		token(w, r.URL.Query().Get("appid"), r.URL.Query().Get("secret"))
	})
	mux.HandleFunc("/cgi-bin/stable_token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AppID  string `json:"appid"`
			Secret string `json:"secret"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		token(w, req.AppID, req.Secret)
	})
	mux.HandleFunc("/cgi-bin/message/subscribe/send", func(w http.ResponseWriter, r *http.Request) {
		f.sendCalls.Add(1)
		if got := r.URL.Query().Get("access_token"); got != "tok" {
			t.Errorf("access_token = %q, want tok", got)
		}
		var msg sentSubscription
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode send body: %v", err)
		}
		f.mu.Lock()
		f.lastSend = msg
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": f.sendCode, "errmsg": "msg"})
	})
	return mux
}

// redirectTransport sends every request to the test server regardless of host.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	req.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestWeChat(t *testing.T, fake *fakeWeChat, appID string) *WeChat {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return NewWeChat(WeChatConfig{
		AppID:      appID,
		Secret:     "secret",
		HTTPClient: &http.Client{Transport: redirectTransport{target: target}},
	}, log.New(io.Discard, "", 0))
}

func TestWeChatSendBuildsSubscriptionMessage(t *testing.T) {
	fake := &fakeWeChat{}
	w := newTestWeChat(t, fake, "app")

	ok, err := w.Send(context.Background(), "openid-1", "tmpl", Message{Subject: "Dentist", Body: "Bring card", Time: "2026-03-01 09:30"})
	if err != nil || !ok {
		t.Fatalf("Send = %v, %v; want true, nil", ok, err)
	}

	fake.mu.Lock()
	got := fake.lastSend
	fake.mu.Unlock()
	if got.ToUser != "openid-1" || got.TemplateID != "tmpl" {
		t.Fatalf("unexpected addressing: %+v", got)
	}
	if got.Page != defaultWeChatPage || got.MiniprogramState != "formal" || got.Lang != "zh_CN" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.Data[fieldSubject].Value != "Dentist" || got.Data[fieldBody].Value != "Bring card" || got.Data[fieldTime].Value != "2026-03-01 09:30" {
		t.Fatalf("unexpected template data: %+v", got.Data)
	}
}

func TestWeChatCachesAccessToken(t *testing.T) {
	fake := &fakeWeChat{}
	w := newTestWeChat(t, fake, "app")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := w.Send(ctx, "openid", "tmpl", Message{}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if fake.tokenCalls.Load() != 1 {
		t.Fatalf("token fetched %d times, want 1", fake.tokenCalls.Load())
	}
	if fake.sendCalls.Load() != 3 {
		t.Fatalf("send calls = %d, want 3", fake.sendCalls.Load())
	}
}

func TestWeChatRejectionIsReported(t *testing.T) {
	fake := &fakeWeChat{sendCode: 43101}
	w := newTestWeChat(t, fake, "app")

	ok, err := w.Send(context.Background(), "openid", "tmpl", Message{})
	if ok {
		t.Fatalf("expected rejection")
	}
	var apiErr *WeChatError
	if !errors.As(err, &apiErr) || apiErr.Code != 43101 {
		t.Fatalf("expected WeChatError 43101, got %v", err)
	}
}

func TestWeChatTokenFailure(t *testing.T) {
	fake := &fakeWeChat{}
	w := newTestWeChat(t, fake, "wrong")

	ok, err := w.Send(context.Background(), "openid", "tmpl", Message{})
	if ok || err == nil {
		t.Fatalf("Send = %v, %v; want false and an error", ok, err)
	}
	if fake.sendCalls.Load() != 0 {
		t.Fatalf("message should not be sent without a token")
	}
}

func TestWeChatRequiresRecipient(t *testing.T) {
	w := NewWeChat(WeChatConfig{}, log.New(io.Discard, "", 0))
	if _, err := w.Send(context.Background(), "  ", "tmpl", Message{}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestWeChatHonoursCancelledContext(t *testing.T) {
	fake := &fakeWeChat{}
	w := newTestWeChat(t, fake, "app")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Send(ctx, "openid", "tmpl", Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fake.tokenCalls.Load() != 0 || fake.sendCalls.Load() != 0 {
		t.Fatal("no request should be made on a cancelled context")
	}
}
