package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhq/steer/pkg/types"
)

func testPayload() *types.WebhookPayload {
	return Payload("batch_1", "task_1", 0, &types.StatusReport{
		Status:  types.AgentStatusCompleted,
		Message: "booked the flight",
	})
}

func TestDeliverPostsSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotSig, gotTS, gotCT string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher()
	d.Deliver(context.Background(), srv.URL, testPayload(), "s3cret")

	assert.Equal(t, "application/json", gotCT)
	require.NotEmpty(t, gotSig)
	assert.True(t, Verify(gotBody, gotSig, "s3cret"))

	_, err := time.Parse(time.RFC3339, gotTS)
	assert.NoError(t, err)

	var decoded types.WebhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "task_status", decoded.Event)
	assert.Equal(t, types.TaskStatusCompleted, decoded.TaskStatus)
	assert.Equal(t, types.AgentStatusCompleted, decoded.AgentStatus)
}

func TestDeliverUnreachableHostReturnsNormally(t *testing.T) {
	d := NewDispatcher(WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reserved TEST-NET address: connection should fail fast.
		d.Deliver(context.Background(), "http://192.0.2.1:9/hook", testPayload(), "")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Deliver did not return after connection failure")
	}
}

func TestDeliverNon2xxIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher()
	d.Deliver(context.Background(), srv.URL, testPayload(), "")
	// Reaching this line is the assertion: no panic, no error surface.
}

func TestDeliverRespectsHostAllowlist(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := NewDispatcher(WithAllowedHosts([]string{"hooks.example.com"}))
	d.Deliver(context.Background(), srv.URL, testPayload(), "")
	assert.False(t, called)

	// 127.0.0.1 matches, delivery goes through.
	d = NewDispatcher(WithAllowedHosts([]string{"127.0.0.1"}))
	d.Deliver(context.Background(), srv.URL, testPayload(), "")
	assert.True(t, called)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"task_status","task_id":"t1"}`)
	sig := Sign(body, "secret")

	assert.True(t, Verify(body, sig, "secret"))
	assert.True(t, Verify(body, "sha256="+sig, "secret"))
	assert.False(t, Verify(body, sig, "wrong"))
	assert.False(t, Verify(body, "", "secret"))

	// Any single-byte mutation of the payload must fail verification.
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.False(t, Verify(mutated, sig, "secret"), "mutation at byte %d accepted", i)
	}
}
