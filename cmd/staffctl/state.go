package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"

	dbfs "github.com/garnizeh/fieldops/db"
	"github.com/garnizeh/fieldops/internal/db"
	"github.com/garnizeh/fieldops/internal/offline"
	"github.com/garnizeh/fieldops/internal/repository/sqlite"
	"github.com/garnizeh/fieldops/pkg/client"
)

const (
	sessionFile = "session.json"
	queueFile   = "device.db"
)

var errNotSignedIn = errors.New(`not signed in, run "staffctl signin" first`)

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fieldops")
	}
	return ".fieldops"
}

// app is the per-invocation device state: the API client, the signed-in
// session and the local offline queue.
type app struct {
	client  *client.Client
	session *client.Session

	conn       *db.DB
	queue      *offline.Queue
	monitor    *offline.Monitor
	dispatcher *offline.Dispatcher
}

// openApp loads the stored session. When requireSession is set a missing
// session is an error.
func openApp(ctx context.Context, requireSession bool) (*app, error) {
	if err := os.MkdirAll(stateDirFlag, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	a := &app{client: client.New(serverFlag, appVersionFlag, nil)}
	s, err := loadSession()
	if err != nil {
		return nil, err
	}
	if s == nil && requireSession {
		return nil, errNotSignedIn
	}
	if s != nil {
		if time.Now().After(s.ExpiresAt) {
			pterm.Warning.Println("stored session has expired, sign in again")
			if requireSession {
				return nil, errNotSignedIn
			}
		} else {
			a.session = s
			a.client.SetToken(s.Token)
		}
	}
	return a, nil
}

// openQueue opens the local queue and probes the server once. A reachable
// server gets every pending action replayed before the command proceeds.
func (a *app) openQueue(ctx context.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	conn, err := db.New(ctx, filepath.Join(stateDirFlag, queueFile), logger)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations, nil); err != nil {
		conn.Close()
		return err
	}
	a.conn = conn
	a.queue = offline.NewQueue(sqlite.New(conn, logger), logger)
	a.monitor = offline.NewMonitor(a.client, a.queue, a.client, 0, 0, logger)
	a.dispatcher = offline.NewDispatcher(a.monitor, a.queue, a.client)
	a.monitor.Poll(ctx)
	return nil
}

func (a *app) Close() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			pterm.Warning.Printfln("close local queue: %v", err)
		}
	}
}

func loadSession() (*client.Session, error) {
	b, err := os.ReadFile(filepath.Join(stateDirFlag, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s client.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func saveSession(s *client.Session) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDirFlag, sessionFile), b, 0o600)
}

func clearSession() error {
	err := os.Remove(filepath.Join(stateDirFlag, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
