package content

import (
	"context"
	"image"
	"sync"

	"github.com/babelcloud/holocast/internal/dispatch"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/pkg/errors"
)

// Events receives navigation lifecycle notifications.
type Events interface {
	NavigationStarting()
	ContentReady()
}

// Host owns a Page on a dispatch loop. Capture and navigation are
// marshaled onto the loop; the page itself is the input target.
type Host struct {
	page *Page
	loop *dispatch.Loop

	mu     sync.Mutex
	events Events
}

func NewHost(page *Page, loop *dispatch.Loop) *Host {
	return &Host{page: page, loop: loop}
}

// Page returns the hosted page. Only touch it from the loop.
func (h *Host) Page() *Page { return h.page }

// Loop is the execution context that owns the page.
func (h *Host) Loop() *dispatch.Loop { return h.loop }

func (h *Host) SetEvents(ev Events) {
	h.mu.Lock()
	h.events = ev
	h.mu.Unlock()
}

func (h *Host) notify(fn func(Events)) {
	h.mu.Lock()
	ev := h.events
	h.mu.Unlock()
	if ev != nil {
		fn(ev)
	}
}

// Navigate starts loading source. NavigationStarting fires immediately and
// ContentReady once the page is laid out.
func (h *Host) Navigate(source string) error {
	h.notify(Events.NavigationStarting)
	err := h.loop.Dispatch(func() {
		h.page.Load(source)
		util.GetLogger().Debug("content loaded", "source", source)
		h.notify(Events.ContentReady)
	})
	return errors.Wrapf(err, "failed to navigate to %s", source)
}

// Capture renders the current viewport on the loop.
func (h *Host) Capture(ctx context.Context) (image.Image, error) {
	var img image.Image
	err := h.loop.Call(ctx, func() error {
		var err error
		img, err = h.page.Render()
		return err
	})
	if err != nil {
		// a cancelled Call may return before the loop is done with img
		return nil, err
	}
	return img, nil
}
