package obs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/":                           "/",
		"/srq20/":                     "/srq20/",
		"/usuarios/me/":               "/usuarios/me/",
		"/avaliacoes/?page=2":         "/avaliacoes/",
		"/avaliacoes/42/":             "/avaliacoes/:id/",
		"/avaliacoes/export/?formato": "/avaliacoes/export/",
		"/avaliacoes/estatisticas/":   "/avaliacoes/estatisticas/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestTrackInFlightBalances(t *testing.T) {
	before := testutil.ToFloat64(clientInFlight)
	done := TrackInFlight()
	if got := testutil.ToFloat64(clientInFlight); got != before+1 {
		t.Fatalf("in-flight=%v, want %v", got, before+1)
	}
	done()
	done()
	if got := testutil.ToFloat64(clientInFlight); got != before {
		t.Fatalf("in-flight=%v after release, want %v", got, before)
	}
}

func TestWriteTextfile(t *testing.T) {
	ObserveRequest("GET", "/srq20/", 200, 20*time.Millisecond)
	InitBuildInfo("test", "abc123")

	path := filepath.Join(t.TempDir(), "srq20.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{"srq20_client_requests_total", `endpoint="/srq20/"`, "srq20_build_info"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("v1", "aaa")
	InitBuildInfo("v2", "bbb")

	if got := testutil.CollectAndCount(buildInfo); got != 1 {
		t.Fatalf("build info series=%d, want 1", got)
	}
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("v2", "bbb", runtime.Version())); got != 1 {
		t.Fatalf("build info value=%v, want 1", got)
	}
}
