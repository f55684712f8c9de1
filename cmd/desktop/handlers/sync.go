package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/resaletally/internal/app"
	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
	"github.com/kimhsiao/resaletally/internal/sync/scheduler"
)

// SyncHandler handles sync identity, status and manual operations.
type SyncHandler struct {
	app *app.App
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(a *app.App) *SyncHandler {
	return &SyncHandler{app: a}
}

// Routes mounts the sync endpoints.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Post("/now", h.TriggerSync)
	r.Post("/download", h.Download)
	r.Post("/login", h.Login)
	r.Post("/online", h.SetOnline)
	r.Post("/enabled", h.SetEnabled)
	r.Post("/id", h.RegenerateID)
	r.Get("/conflicts", h.ListConflicts)
	r.Get("/queue", h.ListQueue)
	r.Get("/backups", h.ListBackups)
	r.Post("/backups/{hash}/restore", h.RestoreBackup)
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
}

// =====================================================
// Status
// =====================================================

// StatusResponse is the body of GET /sync/status.
type StatusResponse struct {
	Status         syncpkg.SyncStatus        `json:"status"`
	Message        string                    `json:"message,omitempty"`
	LastError      string                    `json:"lastError,omitempty"`
	UserID         string                    `json:"userId"`
	DeviceID       string                    `json:"deviceId"`
	Enabled        bool                      `json:"enabled"`
	LastSync       *time.Time                `json:"lastSync,omitempty"`
	PendingChanges int                       `json:"pendingChanges"`
	SyncVersion    int64                     `json:"syncVersion"`
	Scheduler      scheduler.SchedulerStatus `json:"scheduler"`
	ErrorHistory   []syncpkg.SyncErrorEntry  `json:"errorHistory"`
}

// GetStatus handles GET /sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	a := h.app
	current := a.Notifier.Current()
	resp := StatusResponse{
		Status:         a.Client.Status(),
		Message:        current.Message,
		UserID:         a.Session.UserID(),
		DeviceID:       a.Session.DeviceID(),
		Enabled:        a.Session.Enabled() && a.Config.Sync.Enabled,
		LastSync:       a.Client.LastSync(),
		PendingChanges: a.Client.PendingChanges(),
		SyncVersion:    a.Session.SyncVersion(),
		Scheduler:      a.Scheduler.GetStatus(),
		ErrorHistory:   a.Client.ErrorHistory(),
	}
	if err := a.Client.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if resp.ErrorHistory == nil {
		resp.ErrorHistory = []syncpkg.SyncErrorEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =====================================================
// Manual Operations
// =====================================================

// TriggerSync handles POST /sync/now. Offline, the snapshot is queued and
// 503 is returned with queued set.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	err := h.app.Scheduler.SyncNow(r.Context())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRemoteUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"queued": true,
				"error":  ErrorDetail{Code: apperrors.ErrRemoteUnavailable, Message: "offline, sync queued"},
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   h.app.Client.Status(),
		"lastSync": h.app.Client.LastSync(),
	})
}

// Download handles POST /sync/download
func (h *SyncHandler) Download(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Client.Download(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Login handles POST /sync/login with {"code": "ABC123"}.
func (h *SyncHandler) Login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Code) == "" {
		badRequest(w, "code is required")
		return
	}
	if err := h.app.Client.Login(r.Context(), request.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":     h.app.Session.UserID(),
		"backupHash": h.app.Session.BackupHash(),
	})
}

// SetOnline handles POST /sync/online with {"online": bool}. Clients call
// it on browser online and offline events.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if request.Online == nil {
		badRequest(w, "online is required")
		return
	}
	h.app.Scheduler.SetOnlineStatus(*request.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.app.Scheduler.IsOnline()})
}

// SetEnabled handles POST /sync/enabled with {"enabled": bool}.
func (h *SyncHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if request.Enabled == nil {
		badRequest(w, "enabled is required")
		return
	}
	var err error
	if *request.Enabled {
		err = h.app.EnableSync(r.Context())
	} else {
		err = h.app.DisableSync()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": h.app.Session.Enabled()})
}

// RegenerateID handles POST /sync/id and issues a fresh user code.
func (h *SyncHandler) RegenerateID(w http.ResponseWriter, r *http.Request) {
	code, err := h.app.Session.RegenerateUserID()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"userId": code})
}

// =====================================================
// History
// =====================================================

// ListConflicts handles GET /sync/conflicts?limit=
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := h.app.Repo.ListConflictLogs(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*models.ConflictLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// QueueEntry describes one offline queue item.
type QueueEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Sales     int       `json:"sales"`
}

// ListQueue handles GET /sync/queue
func (h *SyncHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	items := h.app.Queue.List()
	entries := make([]QueueEntry, 0, len(items))
	for _, it := range items {
		e := QueueEntry{ID: it.ID, Action: string(it.Action), Timestamp: it.Timestamp}
		if it.Snapshot != nil {
			e.Sales = len(it.Snapshot.Sales)
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}

// BackupEntry describes one login backup.
type BackupEntry struct {
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"takenAt"`
	Current bool      `json:"current"`
}

// ListBackups handles GET /sync/backups
func (h *SyncHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.app.Backups.List()
	if err != nil {
		writeError(w, err)
		return
	}
	current := h.app.Session.BackupHash()
	entries := make([]BackupEntry, 0, len(backups))
	for _, b := range backups {
		entries = append(entries, BackupEntry{
			Hash:    b.Hash,
			Size:    b.Size,
			TakenAt: time.Unix(b.ModTime, 0).UTC(),
			Current: b.Hash == current,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// RestoreBackup handles POST /sync/backups/{hash}/restore
func (h *SyncHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := h.app.Client.RestoreBackup(hash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"restored": hash})
}

// =====================================================
// Export / Import
// =====================================================

// Export handles GET /sync/export and returns the full snapshot.
func (h *SyncHandler) Export(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.app.Repo.ExportSnapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="resaletally-export.json"`)
	writeJSON(w, http.StatusOK, snapshot)
}

// Import handles POST /sync/import. Collections absent from the body are
// left untouched. Views are refreshed and an upload is scheduled.
func (h *SyncHandler) Import(w http.ResponseWriter, r *http.Request) {
	var snapshot models.Snapshot
	if !decodeBody(w, r, &snapshot) {
		return
	}
	if err := h.app.Repo.ImportSnapshot(&snapshot); err != nil {
		writeError(w, err)
		return
	}
	h.app.Notifier.Refresh()
	h.app.Scheduler.Schedule()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sales":     len(snapshot.Sales),
		"materials": len(snapshot.Materials),
	})
}
