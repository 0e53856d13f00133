package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/RemmyNine/chrome-customCSS/navwatch"
)

// Events subscribes to target discovery and emits one navigation event per
// tab load. The channel carries the URL the tab committed to, not the URL it
// may have redirected through; consumers resolve domains from it themselves.
//
// Each page's load is awaited in its own goroutine so one hung tab cannot
// stall the stream. The channel is never closed; consumers stop on ctx.
func (m *Manager) Events(ctx context.Context) <-chan navwatch.Event {
	ch := make(chan navwatch.Event, 16)
	log := m.cfg.Logger

	br := m.Browser()
	if br == nil {
		log.Error("browser: events requested before start")
		return ch
	}
	b := br.Context(ctx)

	go func() {
		if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
			log.Error("browser: target discovery failed", "error", err)
			return
		}

		var mu sync.Mutex
		lastURL := make(map[proto.TargetTargetID]string)

		b.EachEvent(func(e *proto.TargetTargetInfoChanged) {
			info := e.TargetInfo
			if info.Type != "page" || info.URL == "" {
				return
			}
			mu.Lock()
			if lastURL[info.TargetID] == info.URL {
				mu.Unlock()
				return
			}
			lastURL[info.TargetID] = info.URL
			mu.Unlock()
			go m.emitWhenLoaded(ctx, ch, info.TargetID, info.URL)
		}, func(e *proto.TargetTargetDestroyed) {
			mu.Lock()
			delete(lastURL, e.TargetID)
			mu.Unlock()
		})()
	}()

	return ch
}

// emitWhenLoaded waits for the page to finish loading, then emits the event.
// A load-wait failure still emits: a partially loaded page can be styled,
// and the consumer swallows injection failures anyway.
func (m *Manager) emitWhenLoaded(ctx context.Context, ch chan<- navwatch.Event, id proto.TargetTargetID, url string) {
	b := m.Browser()
	if b == nil {
		return
	}
	page, err := b.PageFromTarget(id)
	if err != nil {
		m.cfg.Logger.Debug("browser: target vanished before load", "target", id, "error", err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout)
	defer cancel()
	if err := page.Context(waitCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Debug("browser: load wait gave up", "target", id, "url", url, "error", err)
	}

	select {
	case ch <- navwatch.Event{TabID: string(id), URL: url}:
	case <-ctx.Done():
	}
}
