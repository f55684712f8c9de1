package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/models"
)

// Repository is the entity store. Sales live in their own table so history
// queries can filter in SQL; the other collections are stored as one JSON
// document each. Every successful mutation is announced to subscribers.
type Repository struct {
	db *sql.DB

	// writeMu serializes read-modify-write cycles on document collections.
	writeMu sync.Mutex

	// Prepared statements are cached per query string.
	stmtCache sync.Map // map[string]*sql.Stmt

	listenersMu  sync.RWMutex
	listeners    []listenerEntry
	nextListener int

	now func() time.Time
}

type listenerEntry struct {
	id int
	fn models.ChangeListener
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have prepared the same query meanwhile.
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Change Events
// =====================================================

// Subscribe registers listener for change events. The returned function
// removes it. Listeners run synchronously after the write commits.
func (r *Repository) Subscribe(listener models.ChangeListener) func() {
	r.listenersMu.Lock()
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: listener})
	r.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.listenersMu.Lock()
			defer r.listenersMu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (r *Repository) emit(collection models.Collection, operation, itemID string) {
	r.listenersMu.RLock()
	listeners := make([]models.ChangeListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l.fn)
	}
	r.listenersMu.RUnlock()

	event := models.ChangeEvent{
		Collection: collection,
		Operation:  operation,
		ItemID:     itemID,
		Timestamp:  r.now().UnixMilli(),
	}
	for _, fn := range listeners {
		fn(event)
	}
}

// =====================================================
// Document Helpers
// =====================================================

// loadDocument decodes the stored document for name into dst. It reports
// false when the collection has never been written.
func (r *Repository) loadDocument(name models.Collection, dst interface{}) (bool, error) {
	stmt, err := r.PrepareStmt(`SELECT data FROM collections WHERE name = ?`)
	if err != nil {
		return false, err
	}

	var data string
	if err := stmt.QueryRow(string(name)).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("load %s", name), err)
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("decode %s", name), err)
	}
	return true, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) storeDocument(ex execer, name models.Collection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("encode %s", name), err)
	}

	query := `
	INSERT INTO collections (name, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := ex.Exec(query, string(name), string(data), r.now().UnixMilli()); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("store %s", name), err)
	}
	return nil
}

func notFound(kind, id string) error {
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s not found: %s", kind, id))
}
