// File: internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const shutdownGracePeriod = 15 * time.Second

// ErrManagerClosed is returned when a page is requested after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager tracks the pages opened against one backend and closes them all
// on shutdown. It adds nothing to the page lifecycle beyond open and close.
type Manager struct {
	backend Browser
	logger  *zap.Logger

	mu     sync.RWMutex
	pages  map[string]*managedPage
	closed bool
	wg     sync.WaitGroup // open pages; Shutdown waits on it.
}

// NewManager wraps the given backend. Both dependencies are required.
func NewManager(backend Browser, logger *zap.Logger) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("manager requires a browser backend")
	}
	if logger == nil {
		return nil, errors.New("manager requires a logger")
	}
	return &Manager{
		backend: backend,
		logger:  logger.Named("browser_manager"),
		pages:   make(map[string]*managedPage),
	}, nil
}

// OpenPage opens a page through the backend, navigating to url when it is
// non-empty, and registers it for shutdown tracking. Closing the returned
// page deregisters it.
func (m *Manager) OpenPage(ctx context.Context, url string) (Page, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	page, err := m.backend.NewPage(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	id := uuid.New().String()
	mp := &managedPage{Page: page, id: id}
	mp.onClose = func() {
		m.mu.Lock()
		delete(m.pages, id)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Page removed from manager.", zap.String("page_id", id[:8]))
	}

	m.wg.Add(1)
	m.mu.Lock()
	if m.closed {
		// Shutdown raced us; undo and close the orphan.
		m.mu.Unlock()
		m.wg.Done()
		_ = page.Close(ctx)
		return nil, ErrManagerClosed
	}
	m.pages[id] = mp
	m.mu.Unlock()

	m.logger.Info("Page opened.", zap.String("page_id", id[:8]), zap.String("url", url))
	return mp, nil
}

// Shutdown closes every open page, waits for them (bounded by ctx), then
// closes the backend.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*managedPage, 0, len(m.pages))
	for _, p := range m.pages {
		open = append(open, p)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_pages", len(open)))

	for _, p := range open {
		go func(p *managedPage) {
			if err := p.Close(ctx); err != nil {
				m.logger.Warn("Error closing page during shutdown.",
					zap.String("page_id", p.id[:8]), zap.Error(err))
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("All pages closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for pages to close.", zap.Error(ctx.Err()))
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := m.backend.Close(cleanupCtx); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}

// managedPage deregisters itself from the Manager exactly once on close.
type managedPage struct {
	Page
	id        string
	closeOnce sync.Once
	onClose   func()
}

func (p *managedPage) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		err = p.Page.Close(ctx)
		p.onClose()
	})
	return err
}
