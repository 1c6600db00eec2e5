package streamclient

import (
	"sort"
	"sync"

	"github.com/regassist/backend/pkg/protocol"
)

// Sender is the outbound half of a connection. Conn implements it; tests
// substitute a recorder.
type Sender interface {
	SendType(frameType protocol.FrameType, projectID string, payload interface{})
}

// Subscriptions tracks which projects the client wants updates for. It
// sends the protocol subscribe/unsubscribe frames and keeps the local
// set that consumers consult for filtering. The set is re-announced
// after every reconnect so the server-side view survives transport drops.
type Subscriptions struct {
	sender Sender

	mu       sync.Mutex
	projects map[string]bool
}

// NewSubscriptions creates the subscription layer on a connection.
func NewSubscriptions(conn *Conn) *Subscriptions {
	s := &Subscriptions{
		sender:   conn,
		projects: make(map[string]bool),
	}
	conn.OnConnect(s.announce)
	return s
}

// newSubscriptionsWithSender wires an arbitrary sender, for tests.
func newSubscriptionsWithSender(sender Sender) *Subscriptions {
	return &Subscriptions{
		sender:   sender,
		projects: make(map[string]bool),
	}
}

// SubscribeToProject registers interest in a project and tells the server.
func (s *Subscriptions) SubscribeToProject(projectID string) {
	if projectID == "" {
		return
	}
	s.mu.Lock()
	s.projects[projectID] = true
	s.mu.Unlock()

	s.sender.SendType(protocol.FrameTypeSubscribe, projectID, nil)
}

// UnsubscribeFromProject drops interest in a project and tells the server.
func (s *Subscriptions) UnsubscribeFromProject(projectID string) {
	s.mu.Lock()
	delete(s.projects, projectID)
	s.mu.Unlock()

	s.sender.SendType(protocol.FrameTypeUnsubscribe, projectID, nil)
}

// Contains reports whether the project is in the active subscription set.
func (s *Subscriptions) Contains(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[projectID]
}

// Projects returns the subscribed project IDs, sorted.
func (s *Subscriptions) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// announce re-sends subscribe frames for the whole set.
func (s *Subscriptions) announce() {
	for _, id := range s.Projects() {
		s.sender.SendType(protocol.FrameTypeSubscribe, id, nil)
	}
}
