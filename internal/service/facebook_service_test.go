package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

type feedStub struct {
	feedCalls  []map[string]any
	photoCalls []map[string]any
	failWith   map[string]any
}

func (f *feedStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /page1/feed", func(w http.ResponseWriter, r *http.Request) {
		if f.failWith != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": f.failWith})
			return
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		f.feedCalls = append(f.feedCalls, payload)
		json.NewEncoder(w).Encode(map[string]string{"id": "page1_111"})
	})

	mux.HandleFunc("POST /page1/photos", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		f.photoCalls = append(f.photoCalls, payload)
		json.NewEncoder(w).Encode(map[string]string{"id": "photo9", "post_id": "page1_222"})
	})

	return mux
}

func newTestFacebookService(t *testing.T, stub *feedStub) *facebookService {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	return &facebookService{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func fbCred() *models.FeedCredential {
	return &models.FeedCredential{PageID: "page1", AccessToken: "token"}
}

func TestPublishToFeedText(t *testing.T) {
	stub := &feedStub{}
	s := newTestFacebookService(t, stub)

	content := &transfer.PublishContent{Caption: "hello", Hashtags: []string{"golang", "#news"}}
	res := s.PublishToFeed(context.Background(), content, fbCred(), PublishModeImmediate)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.ExternalID != "page1_111" {
		t.Errorf("expected post id page1_111, got %s", res.ExternalID)
	}

	if len(stub.feedCalls) != 1 {
		t.Fatalf("expected one feed call, got %d", len(stub.feedCalls))
	}
	if stub.feedCalls[0]["message"] != "hello\n\n#golang #news" {
		t.Errorf("unexpected composed message: %v", stub.feedCalls[0]["message"])
	}
	if _, ok := stub.feedCalls[0]["scheduled_publish_time"]; ok {
		t.Error("immediate publish must not set scheduled_publish_time")
	}
}

func TestPublishToFeedWithImage(t *testing.T) {
	stub := &feedStub{}
	s := newTestFacebookService(t, stub)

	content := &transfer.PublishContent{
		Caption: "pic",
		Media:   []transfer.PreparedMedia{{URL: "https://cdn.example.com/a.png", Kind: transfer.MediaKindImage}},
	}
	res := s.PublishToFeed(context.Background(), content, fbCred(), PublishModeImmediate)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.ExternalID != "page1_222" {
		t.Errorf("expected the page post id, got %s", res.ExternalID)
	}

	if len(stub.photoCalls) != 1 || len(stub.feedCalls) != 0 {
		t.Fatalf("expected the photos endpoint, got feed=%d photos=%d", len(stub.feedCalls), len(stub.photoCalls))
	}
	if stub.photoCalls[0]["url"] != "https://cdn.example.com/a.png" {
		t.Errorf("expected image url in payload, got %v", stub.photoCalls[0])
	}
}

func TestPublishToFeedPlatformScheduled(t *testing.T) {
	stub := &feedStub{}
	s := newTestFacebookService(t, stub)

	at := time.Now().Add(time.Hour).Truncate(time.Second)
	content := &transfer.PublishContent{Caption: "later", ScheduledTime: &at}

	res := s.PublishToFeed(context.Background(), content, fbCred(), PublishModePlatformScheduled)
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	payload := stub.feedCalls[0]
	if payload["published"] != false {
		t.Errorf("expected published=false, got %v", payload["published"])
	}
	if payload["scheduled_publish_time"] != float64(at.Unix()) {
		t.Errorf("expected scheduled_publish_time %d, got %v", at.Unix(), payload["scheduled_publish_time"])
	}
}

func TestPublishToFeedPlatformErrorVerbatim(t *testing.T) {
	stub := &feedStub{failWith: map[string]any{"message": "Invalid parameter", "code": 100}}
	s := newTestFacebookService(t, stub)

	res := s.PublishToFeed(context.Background(), &transfer.PublishContent{Caption: "x"}, fbCred(), PublishModeImmediate)
	if res.Err == nil {
		t.Fatal("expected platform error")
	}

	var pErr *PlatformError
	if !errors.As(res.Err, &pErr) {
		t.Fatalf("expected PlatformError, got %v", res.Err)
	}
	if pErr.Message != "Invalid parameter" {
		t.Errorf("expected verbatim platform message, got %q", pErr.Message)
	}
	if pErr.Code != 100 {
		t.Errorf("expected code 100, got %d", pErr.Code)
	}
}

func TestPublishToFeedTokenError(t *testing.T) {
	stub := &feedStub{failWith: map[string]any{"message": "Error validating access token", "code": 190}}
	s := newTestFacebookService(t, stub)

	res := s.PublishToFeed(context.Background(), &transfer.PublishContent{Caption: "x"}, fbCred(), PublishModeImmediate)
	if !errors.Is(res.Err, ErrReauthRequired) {
		t.Errorf("expected ErrReauthRequired, got %v", res.Err)
	}
}
