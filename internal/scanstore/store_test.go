package scanstore

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/monitoring"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })

	s, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// running again is a no-op
	require.NoError(t, s.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	_, err = s.Sessions()
	assert.Error(t, err, "tables should be gone")
}

func TestRecordAndQueryScans(t *testing.T) {
	s := openTestStore(t)

	id, err := s.BeginSession(SessionInfo{Source: "test", StartedAt: 100, Baud: 38400, ScanAngle: 180, ScanResolution: 0.5, MaxDistance: 8})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := []lms.ScanMessage{
		{Timestamp: 100.5, Seq: 1, AvgRate: 4.5, Distances: []int{10, 20, 30}},
		{Timestamp: 100.7, Seq: 2, AvgRate: 4.75, Distances: []int{11, 21}},
		{Timestamp: 100.9, Seq: 3, AvgRate: 5, Distances: []int{}},
	}
	sub := s.Subscriber(id)
	for _, m := range msgs {
		sub(m)
	}

	n, err := s.CountScans(id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := s.LatestScans(id, 2)
	require.NoError(t, err)
	want := []lms.ScanMessage{msgs[2], msgs[1]}
	if diff := cmp.Diff(want, latest); diff != "" {
		t.Errorf("LatestScans mismatch (-want +got):\n%s", diff)
	}

	sessions, err := s.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, 38400, sessions[0].Baud)
}

func TestRecordScan_DuplicateSeqRejected(t *testing.T) {
	s := openTestStore(t)
	id, err := s.BeginSession(SessionInfo{ID: "fixed", Source: "test"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	m := lms.ScanMessage{Timestamp: 1, Seq: 7, Distances: []int{1}}
	require.NoError(t, s.RecordScan(id, m))
	assert.Error(t, s.RecordScan(id, m))

	// the subscriber logs instead of failing
	s.Subscriber(id)(m)
	n, err := s.CountScans(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttachAdminRoutes_Sessions(t *testing.T) {
	s := openTestStore(t)
	_, err := s.BeginSession(SessionInfo{ID: "a", Source: "replay", StartedAt: 1})
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/sessions", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []SessionInfo
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "replay", got[0].Source)
}
