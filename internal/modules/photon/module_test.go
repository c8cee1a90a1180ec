package photon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/intel-lattice/internal/profile"
)

func newSite(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title> Home </title></head><body>
<a href="/about#team">About</a>
<a href="mailto:Info@Example.test?subject=hi">Mail</a>
<a href="https://cdn.other.net/lib.js">CDN</a>
<a href="javascript:void(0)">noop</a>
</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Press: press@example.test</p><a href="/deep">deeper</a><a href="/">home</a></body></html>`)
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>deep@example.test</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestExecuteCrawlsSameHost(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)
	mod := New(WithHTTPClient(server.Client()), WithSeeds(server.URL+"/"), WithLimits(10, 1))
	update, err := mod.Execute(context.Background(), profile.Profile{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	digital := update["digital"].(map[string]any)
	if diff := cmp.Diff([]any{"info@example.test", "press@example.test"}, digital["discovered_emails"]); diff != "" {
		t.Fatalf("emails mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"cdn.other.net"}, digital["external_hosts"]); diff != "" {
		t.Fatalf("external hosts mismatch (-want +got):\n%s", diff)
	}
	crawl := digital["crawl"].([]any)
	if len(crawl) != 2 {
		t.Fatalf("expected depth-limited crawl of 2 pages, got %+v", crawl)
	}
	home := crawl[0].(map[string]any)
	if home["title"] != "Home" || home["status"] != http.StatusOK || home["links"] != 2 {
		t.Fatalf("unexpected home page entry: %+v", home)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
}

func TestExecuteRespectsPageLimit(t *testing.T) {
	var hits int32
	server := newSite(t, &hits)
	mod := New(WithHTTPClient(server.Client()), WithSeeds(server.URL), WithLimits(1, 5))
	update, err := mod.Execute(context.Background(), profile.Profile{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := len(update["digital"].(map[string]any)["crawl"].([]any)); got != 1 {
		t.Fatalf("expected 1 page, got %d", got)
	}
}

func TestExecuteSeedErrors(t *testing.T) {
	_, err := New().Execute(context.Background(), profile.Profile{})
	if err == nil || !strings.Contains(err.Error(), "No target domain provided") {
		t.Fatalf("expected missing domain error, got %v", err)
	}
	_, err = New(WithSeeds("ftp://example.com")).Execute(context.Background(), profile.Profile{})
	if err == nil || !strings.Contains(err.Error(), "invalid seed url") {
		t.Fatalf("expected invalid seed error, got %v", err)
	}
}

func TestExecuteFailsWhenNothingFetched(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	_, err := New(WithSeeds(url)).Execute(context.Background(), profile.Profile{})
	if err == nil || !strings.Contains(err.Error(), "no pages could be fetched") {
		t.Fatalf("expected fetch failure, got %v", err)
	}
}
