/*
DESCRIPTION
  fetch_test.go tests image retrieval over HTTP and from data URLs.

LICENSE
  Copyright (C) 2025 the Australian Ocean Lab (AusOcean)

  It is free software: you can redistribute it and/or modify them
  under the terms of the GNU General Public License as published by the
  Free Software Foundation, either version 3 of the License, or (at your
  option) any later version.

  It is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
  FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License
  for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt.  If not, see http://www.gnu.org/licenses.
*/

package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/client"
	"github.com/ausocean/utils/logging"
)

var payload = []byte("\x89PNG\r\n\x1a\nnot really a png but bytes all the same")

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.Write(payload)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length, so the limit is enforced while reading.
		w.(http.Flusher).Flush()
		io.Copy(w, bytes.NewReader(bytes.Repeat([]byte{1}, 4096)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newServer(t)
	f := New((*logging.TestLogger)(t), DefaultTimeout, DefaultMaxBytes)

	got, err := f.Fetch(context.Background(), srv.URL+"/img")
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("did not get expected bytes. Want: %q, Got: %q", payload, got)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected not found status error, got %v", err)
	}
}

func TestFetchLimits(t *testing.T) {
	srv := newServer(t)

	f := New((*logging.TestLogger)(t), DefaultTimeout, 16)
	for _, path := range []string{"/img", "/stream"} {
		_, err := f.Fetch(context.Background(), srv.URL+path)
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("%s: did not get expected error. Want: %v, Got: %v", path, ErrTooLarge, err)
		}
	}

	f = New((*logging.TestLogger)(t), 100*time.Millisecond, DefaultMaxBytes)
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	if err == nil {
		t.Error("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("fetch did not time out promptly, took %v", time.Since(start))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f = New((*logging.TestLogger)(t), DefaultTimeout, DefaultMaxBytes)
	_, err = f.Fetch(ctx, srv.URL+"/img")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("did not get expected error. Want: %v, Got: %v", context.Canceled, err)
	}
}

func TestFetchDataURL(t *testing.T) {
	f := New((*logging.TestLogger)(t), DefaultTimeout, DefaultMaxBytes)
	enc := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		url     string
		want    []byte
		wantErr error
	}{
		{url: "data:image/png;base64," + enc, want: payload},
		{url: "data:;base64," + enc, want: payload},
		{url: "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(payload), want: payload},
		{url: "data:,hello%20world", want: []byte("hello world")},
		{url: "data:image/png;base64", wantErr: ErrDataURL},
		{url: "data:image/png;base64,!!!", wantErr: ErrDataURL},
		{url: "ftp://example.com/a.png", wantErr: ErrScheme},
	}

	for i, test := range tests {
		got, err := f.Fetch(context.Background(), test.url)
		if !errors.Is(err, test.wantErr) {
			t.Errorf("test %d: did not get expected error. Want: %v, Got: %v", i, test.wantErr, err)
			continue
		}
		if !bytes.Equal(got, test.want) {
			t.Errorf("unexpected result for test %d. Want: %q, Got: %q", i, test.want, got)
		}
	}
}

// TestFetchDropout checks that fetches fail while the upstream connection
// is down and succeed once it returns.
func TestFetchDropout(t *testing.T) {
	path, err := exec.LookPath("toxiproxy-server")
	if err != nil {
		t.Skipf("no toxiproxy server in path: %v", err)
	}
	cmd := exec.Command(path)
	cmd.Stdout = io.Discard
	err = cmd.Start()
	if err != nil {
		t.Fatalf("failed to start toxiproxy-server: %v", err)
	}
	defer cmd.Process.Kill()

	// Wait for toxiproxy-server to start up.
	time.Sleep(2 * time.Second)

	srv := newServer(t)
	client := toxiproxy.NewClient("localhost:8474")
	proxy, err := client.CreateProxy("photoid-fetch", "localhost:25051", srv.Listener.Addr().String())
	if err != nil || proxy == nil {
		t.Fatalf("failed to set up proxy: %v", err)
	}
	defer proxy.Delete()

	f := New((*logging.TestLogger)(t), time.Second, DefaultMaxBytes)
	url := "http://localhost:25051/img"

	_, err = f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("did not expect error through proxy: %v", err)
	}

	err = proxy.Disable()
	if err != nil {
		t.Fatalf("failed to disable proxy: %v", err)
	}
	_, err = f.Fetch(context.Background(), url)
	if err == nil {
		t.Error("expected error with proxy down")
	}

	err = proxy.Enable()
	if err != nil {
		t.Fatalf("failed to enable proxy: %v", err)
	}
	got, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("did not expect error after proxy restored: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("did not get expected bytes after proxy restored")
	}
}
