package tui

import "framegrid/internal/grid"

// Bridge carries controller callbacks into the bubbletea event loop. Pass
// it to grid.WithNotifier and its Changed method to grid.WithOnChange.
type Bridge struct {
	notes   chan grid.Notification
	changes chan struct{}
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		notes:   make(chan grid.Notification, 32),
		changes: make(chan struct{}, 1),
	}
}

// Notify implements grid.Notifier. Notifications beyond the buffer are
// dropped rather than blocking the controller.
func (b *Bridge) Notify(n grid.Notification) {
	select {
	case b.notes <- n:
	default:
	}
}

// Changed coalesces change signals; one pending signal is enough to redraw.
func (b *Bridge) Changed() {
	select {
	case b.changes <- struct{}{}:
	default:
	}
}
