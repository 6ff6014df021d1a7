package collabsuite_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/collector/collabsuite"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

func newTestConn(apiBaseURL string) *models.PlatformConnection {
	return &models.PlatformConnection{
		ID:           "conn-1",
		PlatformType: models.PlatformCollabSuite,
		Metadata:     map[string]string{"api_base_url": apiBaseURL},
	}
}

func TestAdapter_Discover_UnreadableScriptSurfacesAsDegradedCandidatePlusPermissionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/scripts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scripts":[{"id":"script-1","name":"Locked Script","readable":false}]}`))
	})
	mux.HandleFunc("/scheduled-tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tasks":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := collabsuite.NewAdapter(collector.NewClient(100))
	conn := newTestConn(srv.URL)

	out := adapter.Discover(context.Background(), conn, &models.OAuthCredential{}, collector.DiscoverOptions{SubmethodTimeout: time.Second})

	var sawCandidate, sawPermissionError bool
	for res := range out {
		if res.Err != nil {
			if res.Err.Kind == collector.KindPermission {
				sawPermissionError = true
			}
			continue
		}
		if res.Candidate.ExternalID == "script-1" {
			sawCandidate = true
			if len(res.Candidate.Actions) != 0 {
				t.Errorf("expected no Actions for an unreadable script, got %v", res.Candidate.Actions)
			}
		}
	}
	if !sawCandidate {
		t.Error("expected the unreadable script to still surface as a candidate")
	}
	if !sawPermissionError {
		t.Error("expected a permission error alongside the degraded candidate")
	}
}

func TestAdapter_Discover_ScheduledTasksSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/scripts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scripts":[]}`))
	})
	mux.HandleFunc("/scheduled-tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tasks":[{"id":"task-1","name":"Nightly Export","schedule":"0 0 * * *"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := collabsuite.NewAdapter(collector.NewClient(100))
	conn := newTestConn(srv.URL)

	out := adapter.Discover(context.Background(), conn, &models.OAuthCredential{}, collector.DiscoverOptions{SubmethodTimeout: time.Second})

	var sawTask bool
	for res := range out {
		if res.Err != nil {
			t.Fatalf("unexpected sub-method error: %v", res.Err)
		}
		if res.Candidate.ExternalID == "task-1" {
			sawTask = true
		}
	}
	if !sawTask {
		t.Error("expected the scheduled task candidate to be surfaced")
	}
}

func TestAdapter_PlatformType(t *testing.T) {
	adapter := collabsuite.NewAdapter(collector.NewClient(100))
	if adapter.PlatformType() != models.PlatformCollabSuite {
		t.Errorf("PlatformType() = %s, want collab_suite", adapter.PlatformType())
	}
}
