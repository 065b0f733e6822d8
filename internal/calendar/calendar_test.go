package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"chronoproof/internal/attestation"
	"chronoproof/internal/fanout"
	"chronoproof/internal/proof"
	"chronoproof/internal/serialize"
)

func mustSerialize(t *testing.T, ts *proof.Timestamp) []byte {
	t.Helper()
	w := serialize.NewWriter()
	if err := ts.Serialize(w); err != nil {
		t.Fatal(err)
	}
	return w.Bytes()
}

func TestSubmitSuccess(t *testing.T) {
	digest := []byte("the commitment digest")
	ts := proof.New(digest)
	pending, err := attestation.NewPending("cal.example.com")
	if err != nil {
		t.Fatal(err)
	}
	ts.AddAttestation(pending)
	wire := mustSerialize(t, ts)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/digest" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(wire)
	}))
	defer server.Close()

	c := New(server.URL)
	got, err := c.Submit(context.Background(), digest)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ts) {
		t.Fatalf("submit round trip mismatch")
	}
}

func TestGetTimestampNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetTimestamp(context.Background(), []byte("no such commitment"))
	if !errors.Is(err, ErrCommitmentNotFound) {
		t.Fatalf("expected ErrCommitmentNotFound, got %v", err)
	}
}

func TestGetTimestampUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetTimestamp(context.Background(), []byte("x"))
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, MaxResponseSize+1))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Submit(context.Background(), []byte("d"))
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestSubmitAllFansOutToEveryCalendar(t *testing.T) {
	digest := []byte("fan-out digest")
	ts := proof.New(digest)
	pending, err := attestation.NewPending("cal.example.com")
	if err != nil {
		t.Fatal(err)
	}
	ts.AddAttestation(pending)
	wire := mustSerialize(t, ts)

	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(wire)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer serverB.Close()

	c := New(serverA.URL)
	results := c.SubmitAll(context.Background(), digest, []string{serverA.URL, serverB.URL}, rate.NewLimiter(rate.Inf, 1))
	collected := fanout.Collect(context.Background(), results, 1, 5*time.Second)

	if len(collected) != 1 {
		t.Fatalf("expected exactly one success, got %d", len(collected))
	}
	if !collected[0].Timestamp.Equal(ts) {
		t.Fatal("fanned-out submit result does not match expected timestamp")
	}
}

func TestWhitelistGlobAndExactRules(t *testing.T) {
	wl, err := NewWhitelist([]string{"*.pool.opentimestamps.org/digest"})
	if err != nil {
		t.Fatal(err)
	}

	if !wl.Allowed("https://a.pool.opentimestamps.org/digest") {
		t.Fatal("expected glob match to allow a.pool.opentimestamps.org over https")
	}
	if !wl.Allowed("http://a.pool.opentimestamps.org/digest") {
		t.Fatal("expected implicit http:// variant to be allowed")
	}
	if wl.Allowed("https://a.pool.opentimestamps.org/other") {
		t.Fatal("expected path mismatch to be rejected")
	}
	if wl.Allowed("https://evil.com/digest") {
		t.Fatal("expected non-matching netloc to be rejected")
	}
	if wl.Allowed("https://a.pool.opentimestamps.org/digest?x=1") {
		t.Fatal("expected query component to be rejected")
	}
	if wl.Allowed("https://a.pool.opentimestamps.org/digest#frag") {
		t.Fatal("expected fragment component to be rejected")
	}
}
