package main

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"github.com/kimhsiao/resaletally/internal/app"
	"github.com/kimhsiao/resaletally/internal/config"
	apperrors "github.com/kimhsiao/resaletally/internal/errors"
	"github.com/kimhsiao/resaletally/internal/logging"
)

// pauseWait bounds how long a pause waits for the beacon upload.
const pauseWait = 3 * time.Second

var errNotInitialized = apperrors.New(apperrors.ErrInvalid, "core not initialized")

// response is the JSON envelope returned by every exported call.
type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// bridge owns the single app instance behind the exported functions.
type bridge struct {
	mu     gosync.Mutex
	app    *app.App
	cancel context.CancelFunc
}

var core = &bridge{}

func encode(data interface{}, err error) string {
	resp := response{OK: err == nil, Data: data}
	if err != nil {
		msg := err.Error()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		resp.Data = nil
		resp.Error = &errorBody{Code: apperrors.CodeOf(err), Message: msg}
	}
	out, mErr := json.Marshal(resp)
	if mErr != nil {
		return `{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"encode response"}}`
	}
	return string(out)
}

// init opens the store under dataDir and starts background sync. A second
// call is a no-op.
func (b *bridge) init(dataDir, configFile string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.app != nil {
		return encode(map[string]string{"userId": b.app.Session.UserID()}, nil)
	}

	cfg, err := config.Load(config.Options{ConfigFile: configFile})
	if err != nil {
		return encode(nil, apperrors.Wrap(apperrors.ErrInvalid, "load config", err))
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logging.Setup(cfg.Log.Level, cfg.Log.File)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg)
	if err != nil {
		cancel()
		return encode(nil, err)
	}
	if err := a.Start(ctx); err != nil {
		cancel()
		_ = a.Close()
		return encode(nil, err)
	}

	b.app = a
	b.cancel = cancel
	return encode(map[string]string{"userId": a.Session.UserID()}, nil)
}

func (b *bridge) with(fn func(a *app.App) (interface{}, error)) string {
	b.mu.Lock()
	a := b.app
	b.mu.Unlock()
	if a == nil {
		return encode(nil, errNotInitialized)
	}
	return encode(fn(a))
}

func (b *bridge) status() string {
	return b.with(func(a *app.App) (interface{}, error) {
		return map[string]interface{}{
			"status":    a.Client.Status(),
			"userId":    a.Session.UserID(),
			"lastSync":  a.Client.LastSync(),
			"scheduler": a.Scheduler.GetStatus(),
		}, nil
	})
}

func (b *bridge) syncNow() string {
	return b.with(func(a *app.App) (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Sync.PeriodicInterval)
		defer cancel()
		return nil, a.Scheduler.SyncNow(ctx)
	})
}

func (b *bridge) setOnline(online bool) string {
	return b.with(func(a *app.App) (interface{}, error) {
		a.Scheduler.SetOnlineStatus(online)
		return map[string]bool{"online": a.Scheduler.IsOnline()}, nil
	})
}

func (b *bridge) login(code string) string {
	return b.with(func(a *app.App) (interface{}, error) {
		if err := a.Client.Login(context.Background(), code); err != nil {
			return nil, err
		}
		return map[string]string{"userId": a.Session.UserID()}, nil
	})
}

func (b *bridge) exportSnapshot() string {
	return b.with(func(a *app.App) (interface{}, error) {
		return a.Repo.ExportSnapshot()
	})
}

// pause runs when the app moves to the background: pending changes are sent
// as a beacon so a kill does not lose them.
func (b *bridge) pause() string {
	return b.with(func(a *app.App) (interface{}, error) {
		sent := a.Scheduler.Flush()
		delivered := true
		if sent {
			if w, ok := a.Remote.(interface{ WaitBeacons(time.Duration) bool }); ok {
				delivered = w.WaitBeacons(pauseWait)
			}
		}
		return map[string]bool{"flushed": sent, "delivered": delivered}, nil
	})
}

// resume pulls remote changes made while the app was in the background.
func (b *bridge) resume() string {
	return b.with(func(a *app.App) (interface{}, error) {
		if !a.Session.Enabled() || !a.Config.Sync.Enabled || !a.Scheduler.IsOnline() {
			return map[string]bool{"downloaded": false}, nil
		}
		if _, err := a.Client.Download(context.Background()); err != nil {
			return nil, err
		}
		return map[string]bool{"downloaded": true}, nil
	})
}

func (b *bridge) shutdown() string {
	b.mu.Lock()
	a, cancel := b.app, b.cancel
	b.app, b.cancel = nil, nil
	b.mu.Unlock()

	if a == nil {
		return encode(nil, nil)
	}
	err := a.Shutdown(pauseWait)
	cancel()
	return encode(nil, err)
}

func main() {
	// Required for c-shared build mode; never runs.
}
