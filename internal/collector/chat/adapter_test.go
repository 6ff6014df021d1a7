package chat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/collector/chat"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

func newTestConn(apiBaseURL string) *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:           "conn-1",
		PlatformType: models.PlatformChat,
		Metadata:     map[string]string{"api_base_url": apiBaseURL},
	}
}

func TestAdapter_Discover_ReturnsBotsAndWebhooks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bots", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bots":[{"id":"bot-1","name":"Deploy Bot","scopes":["chat:write"]}]}`))
	})
	mux.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"webhooks":[{"id":"hook-1","name":"CI Notifier","target_url":"https://ci.example.com/hook"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := chat.NewAdapter(collector.NewClient(100))
	conn := newTestConn(srv.URL)

	out := adapter.Discover(context.Background(), conn, &models.OAuthCredential{}, collector.DiscoverOptions{SubmethodTimeout: time.Second})

	var bots, webhooks int
	for res := range out {
		if res.Err != nil {
			t.Fatalf("unexpected sub-method error: %v", res.Err)
		}
		switch res.Candidate.TypeHint {
		case models.AutomationBot:
			bots++
			if res.Candidate.ExternalID != "bot-1" {
				t.Errorf("bot ExternalID = %q, want bot-1", res.Candidate.ExternalID)
			}
		case models.AutomationWebhook:
			webhooks++
		}
	}
	if bots != 1 || webhooks != 1 {
		t.Errorf("bots=%d webhooks=%d, want 1 and 1", bots, webhooks)
	}
}

func TestAdapter_Discover_SubMethodErrorIsTaggedFatalOnInvalidJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bots", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	mux.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"webhooks":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := chat.NewAdapter(collector.NewClient(100))
	conn := newTestConn(srv.URL)

	out := adapter.Discover(context.Background(), conn, &models.OAuthCredential{}, collector.DiscoverOptions{SubmethodTimeout: time.Second})

	var sawFatalBotError bool
	for res := range out {
		if res.Err != nil && res.Err.SourceMethod == collector.SourceBotListing {
			sawFatalBotError = true
			if res.Err.Kind != collector.KindFatal {
				t.Errorf("Kind = %s, want fatal for undecodable body", res.Err.Kind)
			}
		}
	}
	if !sawFatalBotError {
		t.Error("expected a fatal error for the bot_listing sub-method")
	}
}

func TestAdapter_Discover_OrdersByExternalIDWhenModifiedAtMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bots", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bots":[{"id":"bot-c","name":"C"},{"id":"bot-a","name":"A"},{"id":"bot-b","name":"B"}]}`))
	})
	mux.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"webhooks":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := chat.NewAdapter(collector.NewClient(100))
	conn := newTestConn(srv.URL)

	var got []string
	for i := 0; i < 3; i++ {
		got = got[:0]
		out := adapter.Discover(context.Background(), conn, &models.OAuthCredential{}, collector.DiscoverOptions{SubmethodTimeout: time.Second})
		for res := range out {
			if res.Candidate != nil && res.Candidate.TypeHint == models.AutomationBot {
				got = append(got, res.Candidate.ExternalID)
			}
		}
		want := []string{"bot-a", "bot-b", "bot-c"}
		if len(got) != len(want) {
			t.Fatalf("run %d: got %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("run %d: order = %v, want %v", i, got, want)
				break
			}
		}
	}
}

func TestAdapter_PlatformType(t *testing.T) {
	adapter := chat.NewAdapter(collector.NewClient(100))
	if adapter.PlatformType() != models.PlatformChat {
		t.Errorf("PlatformType() = %s, want chat", adapter.PlatformType())
	}
}
