package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/kimhsiao/resaletally/internal/logging"
)

// TriggerFileName is the cross-process notification file in the data dir.
const TriggerFileName = "sync_trigger.json"

// DefaultTriggerWindow is how old a trigger may be and still be honored.
const DefaultTriggerWindow = 5 * time.Second

// Trigger tells other processes sharing a data dir that the remote copy for
// UserID changed. Timestamp is Unix milliseconds.
type Trigger struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	Origin    string `json:"origin"`
}

// TriggerFile publishes and watches the shared trigger. It is advisory only:
// two processes can still race to upload.
type TriggerFile struct {
	path   string
	origin string
	window time.Duration
	now    func() time.Time

	mu       gosync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       gosync.WaitGroup
	running  bool
	lastSeen Trigger
}

// NewTriggerFile creates a TriggerFile in dataDir with a random origin id.
func NewTriggerFile(dataDir string, window time.Duration) *TriggerFile {
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	return &TriggerFile{
		path:   filepath.Join(dataDir, TriggerFileName),
		origin: uuid.New().String(),
		window: window,
		now:    time.Now,
	}
}

// Path returns the trigger file location.
func (t *TriggerFile) Path() string {
	return t.path
}

// Origin returns the id stamped on triggers from this process.
func (t *TriggerFile) Origin() string {
	return t.origin
}

// Publish atomically writes a trigger for userID.
func (t *TriggerFile) Publish(userID string) error {
	data, err := json.Marshal(Trigger{
		UserID:    userID,
		Timestamp: t.now().UnixMilli(),
		Origin:    t.origin,
	})
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".sync_trigger-*")
	if err != nil {
		return fmt.Errorf("create trigger: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write trigger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write trigger: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish trigger: %w", err)
	}
	return nil
}

// Read returns the current trigger, or nil when none was published.
func (t *TriggerFile) Read() (*Trigger, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trigger: %w", err)
	}

	var tr Trigger
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("decode trigger: %w", err)
	}
	return &tr, nil
}

// Accept reports whether tr should cause a download for userID: same user,
// another origin, and no older than the window.
func (t *TriggerFile) Accept(tr *Trigger, userID string) bool {
	if tr == nil || tr.UserID != userID || tr.Origin == t.origin {
		return false
	}
	age := t.now().Sub(time.UnixMilli(tr.Timestamp))
	return age <= t.window
}

// Watch starts watching the data dir. onTrigger runs on the watch goroutine
// for every accepted trigger; userID is read at event time so a login is
// honored. Watch returns once the watcher is installed.
func (t *TriggerFile) Watch(ctx context.Context, userID func() string, onTrigger func(*Trigger)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("trigger watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: Publish replaces the file by rename.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.path), err)
	}

	t.watcher = watcher
	t.done = make(chan struct{})
	t.running = true

	t.wg.Add(1)
	go t.processEvents(ctx, userID, onTrigger)

	logging.Debug("Watching sync trigger", map[string]interface{}{"path": t.path})
	return nil
}

// Close stops the watcher and waits for it to exit.
func (t *TriggerFile) Close() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.done)
	watcher := t.watcher
	t.mu.Unlock()

	err := watcher.Close()
	t.wg.Wait()
	return err
}

func (t *TriggerFile) processEvents(ctx context.Context, userID func() string, onTrigger func(*Trigger)) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != TriggerFileName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			t.handle(userID(), onTrigger)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Sync trigger watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (t *TriggerFile) handle(userID string, onTrigger func(*Trigger)) {
	tr, err := t.Read()
	if err != nil {
		logging.Debug("Skipping unreadable sync trigger", map[string]interface{}{"error": err.Error()})
		return
	}
	if !t.Accept(tr, userID) {
		return
	}

	// A rename and a write can both fire for one publish.
	t.mu.Lock()
	if *tr == t.lastSeen {
		t.mu.Unlock()
		return
	}
	t.lastSeen = *tr
	t.mu.Unlock()

	logging.Info("Sync trigger received", map[string]interface{}{
		"user_id": tr.UserID,
		"origin":  tr.Origin,
	})
	onTrigger(tr)
}
