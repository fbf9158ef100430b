// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package startqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_OrdersEntriesFIFO(t *testing.T) {
	q := New(Config{PostSignalDelay: time.Millisecond, StartupTimeout: time.Second})

	var mu sync.Mutex
	var order []string

	started := make(chan string, 2)
	q.Enqueue("a", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "a-start")
		mu.Unlock()
		started <- "a"
		return nil
	}, nil)

	<-started
	q.SignalReady("a")

	q.Enqueue("b", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "b-start")
		mu.Unlock()
		started <- "b"
		return nil
	}, nil)
	<-started
	q.SignalReady("b")

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a-start", "b-start"}, order)
}

func TestQueue_OAuthDetectorPausesTimeout(t *testing.T) {
	q := New(Config{
		StartupTimeout:    50 * time.Millisecond,
		PostSignalDelay:   time.Millisecond,
		OAuthPollInterval: 5 * time.Millisecond,
		OAuthSelfCancel:   time.Second,
	})

	var lines []string
	var mu sync.Mutex
	authURL := make(chan string, 1)
	q.SetAuthBroadcast(func(sessionID, url string) {
		authURL <- url
	}, func(sessionID string) {})

	mu.Lock()
	lines = []string{"starting up", "Visit http://localhost:8020/auth to continue"}
	mu.Unlock()

	q.Enqueue("auth-session", func(ctx context.Context) error { return nil }, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, lines...)
	})

	select {
	case url := <-authURL:
		assert.Equal(t, "http://localhost:8020/auth", url)
	case <-time.After(700 * time.Millisecond):
		t.Fatal("onAuthRequired was never called")
	}

	q.SignalReady("auth-session")
}

func TestQueue_GetProgress(t *testing.T) {
	q := New(Config{})
	p := q.GetProgress()
	assert.Equal(t, 0, p.Total)
	assert.False(t, p.IsActive)
}
