package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/Harris-py/codecollab-go/internal/devserver"
	"github.com/Harris-py/codecollab-go/pkg/api"
)

func startRESTBackend(t *testing.T) *APIClient {
	t.Helper()
	srv, err := devserver.New(devserver.Config{Runner: echoRunner{}})
	if err != nil {
		t.Fatalf("devserver.New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewAPIClient(ts.URL, nil)
}

func TestAPIClientSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	ac := startRESTBackend(t)

	created, err := ac.CreateSession(ctx, api.CreateSessionRequest{
		Name: "interview", Language: "go", Username: "alice",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected a token on create")
	}

	// CreateSession stores the token, so subsequent calls are authorized.
	got, err := ac.GetSession(ctx, created.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "interview" {
		t.Fatalf("name = %q", got.Name)
	}

	updated, err := ac.UpdateSession(ctx, created.Session.ID, api.UpdateSessionRequest{Language: "python"})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.Language != "python" || updated.Name != "interview" {
		t.Fatalf("session after update = %+v", updated)
	}

	run, err := ac.RunCode(ctx, api.RunCodeRequest{Code: "print(2+3)", Language: "python"})
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if run.Output != "5\n" {
		t.Fatalf("output = %q", run.Output)
	}

	if err := ac.DeleteSession(ctx, created.Session.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := ac.GetSession(ctx, created.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAPIClientJoinByCode(t *testing.T) {
	ctx := context.Background()
	ac := startRESTBackend(t)

	created, err := ac.CreateSession(ctx, api.CreateSessionRequest{Username: "alice"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	joiner := NewAPIClient(ac.baseURL, nil)
	joined, err := joiner.JoinSession(ctx, api.JoinSessionRequest{
		JoinCode: created.Session.JoinCode, Username: "bob",
	})
	if err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	if joined.Session.ID != created.Session.ID {
		t.Fatalf("joined %q, want %q", joined.Session.ID, created.Session.ID)
	}

	if _, err := joiner.JoinSession(ctx, api.JoinSessionRequest{JoinCode: "NOPE22", Username: "x"}); err == nil {
		t.Fatal("expected error for unknown join code")
	}
}

func TestAPIClientSurfacesErrorPayloads(t *testing.T) {
	ctx := context.Background()
	ac := startRESTBackend(t)

	_, err := ac.CreateSession(ctx, api.CreateSessionRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Message == "" {
		t.Fatalf("apiErr = %+v", apiErr)
	}

	// Unauthenticated session reads are rejected.
	fresh := NewAPIClient(ac.baseURL, nil)
	_, err = fresh.GetSession(ctx, "whatever")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestAPIClientLanguages(t *testing.T) {
	ac := startRESTBackend(t)
	langs, err := ac.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if len(langs.Languages) == 0 {
		t.Fatal("expected advertised languages")
	}
}
