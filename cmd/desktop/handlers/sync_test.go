package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// =====================================================
// Status
// =====================================================

func TestSyncHandler_GetStatus(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/sync/status", nil)
	expectStatus(t, rr, http.StatusOK)

	var status StatusResponse
	decode(t, rr, &status)
	if status.UserID != s.app.Session.UserID() || len(status.UserID) != 6 {
		t.Errorf("UserID = %q", status.UserID)
	}
	if !status.Enabled {
		t.Error("Expected sync enabled by default")
	}
	if status.LastSync != nil {
		t.Errorf("Expected no last sync, got %v", status.LastSync)
	}
	if !status.Scheduler.IsOnline {
		t.Error("Expected scheduler online")
	}
	if status.ErrorHistory == nil {
		t.Error("ErrorHistory should be an empty list, not null")
	}
}

// =====================================================
// Manual Sync
// =====================================================

func TestSyncHandler_TriggerSync(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/sync/now", nil)
	expectStatus(t, rr, http.StatusOK)

	if upserts, _ := s.remote.Stats(); upserts != 1 {
		t.Errorf("Upserts = %d, want 1", upserts)
	}

	var status StatusResponse
	decode(t, s.do(t, http.MethodGet, "/sync/status", nil), &status)
	if status.LastSync == nil {
		t.Error("Expected last sync after manual sync")
	}
}

func TestSyncHandler_TriggerSync_Offline(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/sync/online", map[string]interface{}{"online": false})
	expectStatus(t, rr, http.StatusOK)

	rr = s.do(t, http.MethodPost, "/sync/now", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)

	var body struct {
		Queued bool        `json:"queued"`
		Error  ErrorDetail `json:"error"`
	}
	decode(t, rr, &body)
	if !body.Queued || body.Error.Code != "REMOTE_UNAVAILABLE" {
		t.Errorf("Unexpected body %+v", body)
	}

	var queue []QueueEntry
	decode(t, s.do(t, http.MethodGet, "/sync/queue", nil), &queue)
	if len(queue) != 1 {
		t.Fatalf("Queue length = %d, want 1", len(queue))
	}

	if upserts, _ := s.remote.Stats(); upserts != 0 {
		t.Errorf("Offline sync should not reach the remote, got %d upserts", upserts)
	}

	s.do(t, http.MethodPost, "/sync/online", map[string]interface{}{"online": true})
	deadline := time.Now().Add(2 * time.Second)
	for s.app.Queue.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.app.Queue.Len() != 0 {
		t.Error("Queue should drain after going online")
	}
}

func TestSyncHandler_SetOnline_Validation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/sync/online", map[string]interface{}{})
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestSyncHandler_Download(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/sync/download", nil)
	expectStatus(t, rr, http.StatusOK)

	var result syncpkg.SyncResult
	decode(t, rr, &result)
	if !result.FirstSync {
		t.Error("Expected first sync against an empty remote")
	}
}

func TestSyncHandler_Download_RemoteFailure(t *testing.T) {
	s := newTestServer(t)
	s.remote.FailNext(10, errors.New("connection refused"))

	rr := s.do(t, http.MethodPost, "/sync/download", nil)
	expectStatus(t, rr, http.StatusBadGateway)
	expectErrorCode(t, rr, "SYNC_FAILED")

	var status StatusResponse
	decode(t, s.do(t, http.MethodGet, "/sync/status", nil), &status)
	if status.Status != syncpkg.StatusError || len(status.ErrorHistory) == 0 {
		t.Errorf("Expected error status with history, got %s / %d", status.Status, len(status.ErrorHistory))
	}
}

// =====================================================
// Identity
// =====================================================

func TestSyncHandler_Login(t *testing.T) {
	s := newTestServer(t)
	sale := models.Sale{ID: "local-1", ProductName: "Tote", Platform: "mercari"}
	if err := s.app.Repo.SaveSale(&sale); err != nil {
		t.Fatalf("Failed to save sale: %v", err)
	}

	rr := s.do(t, http.MethodPost, "/sync/login", map[string]interface{}{"code": "abc123"})
	expectStatus(t, rr, http.StatusOK)

	var body struct {
		UserID     string `json:"userId"`
		BackupHash string `json:"backupHash"`
	}
	decode(t, rr, &body)
	if body.UserID != "ABC123" {
		t.Errorf("UserID = %q, want ABC123", body.UserID)
	}
	if body.BackupHash == "" {
		t.Error("Expected a login backup")
	}

	var backups []BackupEntry
	decode(t, s.do(t, http.MethodGet, "/sync/backups", nil), &backups)
	if len(backups) != 1 || !backups[0].Current {
		t.Fatalf("Backups = %+v", backups)
	}

	rr = s.do(t, http.MethodPost, "/sync/backups/"+backups[0].Hash+"/restore", nil)
	expectStatus(t, rr, http.StatusOK)

	rr = s.do(t, http.MethodPost, "/sync/backups/0000/restore", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestSyncHandler_Login_Invalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"missing code", map[string]interface{}{}, "INVALID_INPUT"},
		{"bad format", map[string]interface{}{"code": "ab-12"}, "INVALID_USER_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/sync/login", tt.body)
			expectStatus(t, rr, http.StatusBadRequest)
			expectErrorCode(t, rr, tt.code)
		})
	}
}

func TestSyncHandler_RegenerateID(t *testing.T) {
	s := newTestServer(t)
	before := s.app.Session.UserID()

	var body struct {
		UserID string `json:"userId"`
	}
	decode(t, s.do(t, http.MethodPost, "/sync/id", nil), &body)
	if len(body.UserID) != 6 || body.UserID != s.app.Session.UserID() {
		t.Errorf("UserID = %q, session has %q", body.UserID, s.app.Session.UserID())
	}
	if body.UserID == before {
		t.Log("Regenerated code collided with the previous one")
	}
}

func TestSyncHandler_SetEnabled(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/sync/enabled", map[string]interface{}{"enabled": false})
	expectStatus(t, rr, http.StatusOK)
	if s.app.Session.Enabled() || s.app.Watcher.Enabled() {
		t.Error("Expected sync and watcher disabled")
	}

	rr = s.do(t, http.MethodPost, "/sync/enabled", map[string]interface{}{"enabled": true})
	expectStatus(t, rr, http.StatusOK)
	if !s.app.Session.Enabled() || !s.app.Watcher.Enabled() {
		t.Error("Expected sync and watcher enabled")
	}
}

func TestSyncHandler_EnableStartsBackgroundSync(t *testing.T) {
	s := newTestServer(t)
	if err := s.app.Session.SetEnabled(false); err != nil {
		t.Fatalf("Failed to disable sync: %v", err)
	}
	if err := s.app.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start app: %v", err)
	}
	if s.app.Scheduler.IsRunning() {
		t.Fatal("Scheduler should not run while sync is disabled")
	}

	rr := s.do(t, http.MethodPost, "/sync/enabled", map[string]interface{}{"enabled": true})
	expectStatus(t, rr, http.StatusOK)

	if !s.app.Watcher.Enabled() || !s.app.Scheduler.IsRunning() || !s.app.SyncRunning() {
		t.Error("Expected watcher and scheduler running after enabling sync")
	}
	if _, fetches := s.remote.Stats(); fetches == 0 {
		t.Error("Expected an initial download after enabling sync")
	}
}

// =====================================================
// Conflicts, Export, Import
// =====================================================

func TestSyncHandler_ListConflicts(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/sync/conflicts", nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "[]\n" {
		t.Errorf("Expected empty list, got %q", rr.Body.String())
	}

	rr = s.do(t, http.MethodGet, "/sync/conflicts?limit=zero", nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestSyncHandler_ExportImport(t *testing.T) {
	s := newTestServer(t)

	refreshed := 0
	unregister := s.app.Notifier.Register("test", syncpkg.RefreshFunc(func() { refreshed++ }))
	defer unregister()

	rr := s.do(t, http.MethodPost, "/sync/import", `{"sales":[{"id":"x1","productName":"Imported","date":"2026-01-02T00:00:00Z"}]}`)
	expectStatus(t, rr, http.StatusOK)
	if refreshed != 1 {
		t.Errorf("Refresh count = %d, want 1", refreshed)
	}

	rr = s.do(t, http.MethodGet, "/sync/export", nil)
	expectStatus(t, rr, http.StatusOK)
	if cd := rr.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Expected an attachment header")
	}

	var snapshot models.Snapshot
	decode(t, rr, &snapshot)
	if len(snapshot.Sales) != 1 || snapshot.Sales[0].ID != "x1" {
		t.Errorf("Exported sales = %+v", snapshot.Sales)
	}
	if snapshot.Settings == nil {
		t.Error("Untouched collections should still export")
	}
}
