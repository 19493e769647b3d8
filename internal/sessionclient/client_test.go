package sessionclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/christopherjohns/blanc/internal/server"
	"github.com/christopherjohns/blanc/internal/session"
)

func newTestAPI(t *testing.T) *Client {
	t.Helper()
	ts := httptest.NewServer(server.New(":0").Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", ts.Client())
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestAPI(t)

	id, err := c.CreateSession(ctx, "s1", "0xAAA")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "s1" {
		t.Fatalf("expected id s1, got %q", id)
	}

	sess, err := c.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(sess.Participants) != 0 {
		t.Errorf("expected no participants, got %v", sess.Participants)
	}
	if sess.Creator != "0xAAA" {
		t.Errorf("expected creator 0xAAA, got %q", sess.Creator)
	}

	res, err := c.AddParticipant(ctx, "s1", "0xBBB")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Added || len(res.Participants) != 1 || res.Participants[0] != "0xBBB" {
		t.Errorf("unexpected add result %+v", res)
	}

	res, err = c.AddParticipant(ctx, "s1", "0xBBB")
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if res.Added {
		t.Error("expected duplicate add to report added=false")
	}

	sess, _ = c.GetSession(ctx, "s1")
	if len(sess.Participants) != 1 || sess.Participants[0] != "0xBBB" {
		t.Errorf("expected [0xBBB], got %v", sess.Participants)
	}
}

func TestClientGeneratedID(t *testing.T) {
	c := newTestAPI(t)
	id, err := c.CreateSession(context.Background(), "", "0xAAA")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected server-generated id")
	}
}

func TestClientNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestAPI(t)

	if _, err := c.GetSession(ctx, "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := c.AddParticipant(ctx, "nope", "0xBBB"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound from add, got %v", err)
	}
}

func TestClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"Too many requests"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, ts.Client()).CreateSession(context.Background(), "s1", "0xAAA")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusTooManyRequests || se.Message != "Too many requests" {
		t.Errorf("unexpected status error %+v", se)
	}
}
