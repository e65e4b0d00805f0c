package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func TestGetSetsUserAgentAndReturnsBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "dfwatch-test" {
			t.Errorf("User-Agent = %q", got)
		}
		_, _ = io.WriteString(w, "<tt>ok</tt>")
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{Timeout: time.Second, UserAgent: "dfwatch-test"})
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "<tt>ok</tt>" {
		t.Fatalf("body = %q", body)
	}
}

func TestGetNon2xxIsHTTPStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Options{}).Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("err = %v, want ErrHTTPStatus", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("err %q does not mention the status", err)
	}
}

func TestGetBodyCap(t *testing.T) {
	t.Parallel()
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(make([]byte, 65))),
		}, nil
	}}
	_, err := New(mock, Options{MaxBody: 64}).Get(context.Background(), "http://example.invalid/")
	if err == nil {
		t.Fatal("expected oversized body error")
	}
}

func TestGetTimeoutFuncIsApplied(t *testing.T) {
	t.Parallel()
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c := New(mock, Options{}).WithTimeoutFunc(func() time.Duration { return 10 * time.Millisecond })
	_, err := c.Get(context.Background(), "http://example.invalid/")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
