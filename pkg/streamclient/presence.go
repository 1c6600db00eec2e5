package streamclient

import (
	"sort"
	"sync"
	"time"

	"github.com/regassist/backend/pkg/protocol"
)

// DefaultTypingWindow is how long a user counts as typing after their
// last user_typing event.
const DefaultTypingWindow = 4 * time.Second

// PresenceOption configures a Presence aggregator.
type PresenceOption func(*Presence)

// WithTypingWindow overrides the silence window after which a user is no
// longer reported as typing.
func WithTypingWindow(d time.Duration) PresenceOption {
	return func(p *Presence) { p.window = d }
}

// WithOnPresenceChange sets a callback fired with the active user set
// whenever it changes.
func WithOnPresenceChange(fn func(users []string)) PresenceOption {
	return func(p *Presence) { p.onChange = fn }
}

// Presence tracks which users are currently typing in a project. Entries
// expire after a silence window without needing an explicit stop event,
// so clients that vanish mid-keystroke still age out. A refresh extends
// the existing timer rather than creating a second one, so the reported
// set never flickers for a continuously-typing user.
type Presence struct {
	projectID string
	window    time.Duration
	onChange  func(users []string)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	unsub  func()
}

// NewPresence creates the aggregator for a project and registers its
// router handler. Close removes it and stops all expiry timers.
func NewPresence(router *Router, projectID string, opts ...PresenceOption) *Presence {
	p := &Presence{
		projectID: projectID,
		window:    DefaultTypingWindow,
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.unsub = router.Subscribe(protocol.FrameTypeUserTyping, p.handleTyping)
	return p
}

// handleTyping refreshes the user's expiry timer.
func (p *Presence) handleTyping(frame *protocol.Frame) {
	if p.projectID != "" && frame.ProjectID != p.projectID {
		return
	}

	var payload protocol.TypingPayload
	if err := frame.DecodePayload(&payload); err != nil || payload.UserID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if timer, ok := p.timers[payload.UserID]; ok {
		timer.Reset(p.window)
		return
	}

	userID := payload.UserID
	p.timers[userID] = time.AfterFunc(p.window, func() {
		p.expire(userID)
	})
	p.notifyLocked()
}

// expire removes a user whose silence window elapsed.
func (p *Presence) expire(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.timers[userID]; !ok {
		return
	}
	delete(p.timers, userID)
	p.notifyLocked()
}

// ActiveUsers returns the users currently reported as typing, sorted.
func (p *Presence) ActiveUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeLocked()
}

func (p *Presence) activeLocked() []string {
	users := make([]string, 0, len(p.timers))
	for userID := range p.timers {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// notifyLocked fires the change callback with the current set.
func (p *Presence) notifyLocked() {
	if p.onChange == nil {
		return
	}
	users := p.activeLocked()
	go p.onChange(users)
}

// Close detaches the aggregator and stops all timers.
func (p *Presence) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	timers := p.timers
	p.timers = make(map[string]*time.Timer)
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, timer := range timers {
		timer.Stop()
	}
}
