package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paraScope/internal/cache"
	"paraScope/internal/indexer"
)

var (
	_ indexer.Hooks  = (*Metrics)(nil)
	_ cache.Observer = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.BlockEmitted("polkadot:/0////", 20*time.Millisecond)
	m.BlockEmitted("polkadot:/0////", 30*time.Millisecond)
	m.DecodeError("polkadot:/0////", "extrinsic")
	m.CacheHit("block")
	m.CacheMiss("block")
	m.CacheMiss("block")
	m.RecordsWritten("new_block", 4)
	m.QueueDepth(3)

	body := scrape(t, m)
	for _, want := range []string{
		`parascope_blocks_emitted_total{chain="polkadot:/0////"} 2`,
		`parascope_decode_errors_total{chain="polkadot:/0////",kind="extrinsic"} 1`,
		`parascope_cache_lookups_total{kind="block",result="miss"} 2`,
		`parascope_cache_lookups_total{kind="block",result="hit"} 1`,
		`parascope_records_written_total{kind="new_block"} 4`,
		`parascope_block_seconds_count{chain="polkadot:/0////"} 2`,
		`parascope_queue_depth 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
