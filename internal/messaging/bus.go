// internal/messaging/bus.go
package messaging

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/types"
)

// Directory resolves agents for recipient validation and broadcast
// fan-out. *agents.Store satisfies it.
type Directory interface {
	Get(id string) (*agents.Profile, error)
	List(projectID string, allProjects bool) ([]*agents.Profile, error)
}

// Sink observes every delivered message, for the event log and NATS
type Sink func(msg *Message)

// Bus maintains per-agent mailboxes. Delivery is at-most-once within a
// process lifetime; the sqlite store provides durability across
// restarts. All sends from one sender to one recipient land in the
// recipient's mailbox in send order.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[string][]*Message // recipient -> messages in seq order
	byID      map[string][]*Message // message id -> per-recipient copies
	teams     map[string]*Team
	seq       int64

	directory Directory
	store     *Store
	sink      Sink
}

// NewBus creates a message bus. store may be nil for ephemeral use.
func NewBus(directory Directory, store *Store) *Bus {
	return &Bus{
		mailboxes: make(map[string][]*Message),
		byID:      make(map[string][]*Message),
		teams:     make(map[string]*Team),
		directory: directory,
		store:     store,
	}
}

// OnDeliver registers the delivery sink. Must be called before the bus
// is shared across goroutines.
func (b *Bus) OnDeliver(sink Sink) {
	b.sink = sink
}

// Load rebuilds mailboxes and teams from the store after a restart
func (b *Bus) Load() error {
	if b.store == nil {
		return nil
	}
	messages, err := b.store.LoadAll()
	if err != nil {
		return err
	}
	teams, err := b.store.LoadTeams()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range messages {
		b.mailboxes[msg.To] = append(b.mailboxes[msg.To], msg)
		b.byID[msg.ID] = append(b.byID[msg.ID], msg)
		if msg.Seq > b.seq {
			b.seq = msg.Seq
		}
	}
	for _, team := range teams {
		b.teams[team.ID] = team
	}
	log.Printf("[MSGBUS] Restored %d messages, %d teams", len(messages), len(teams))
	return nil
}

// SendDirect delivers a message to one agent's mailbox
func (b *Bus) SendDirect(from, to, subject, body string, priority Priority, metadata map[string]string) (*Message, error) {
	return b.sendOne(TypeDirect, from, to, "", subject, body, priority, metadata)
}

// RequestCollaboration delivers a collaboration request to one agent.
// The recipient answers with RespondToCollaboration.
func (b *Bus) RequestCollaboration(from, to, subject, body string, metadata map[string]string) (*Message, error) {
	return b.sendOne(TypeCollabRequest, from, to, "", subject, body, PriorityHigh, metadata)
}

// SendTeam fans a message out to every team member except the sender.
// A sender outside the team joins it first.
func (b *Bus) SendTeam(from, teamID, subject, body string, priority Priority, metadata map[string]string) (string, error) {
	priority, err := validatePriority(priority)
	if err != nil {
		return "", err
	}
	if _, err := b.directory.Get(from); err != nil {
		return "", err
	}

	b.mu.Lock()
	team, ok := b.teams[teamID]
	if !ok {
		b.mu.Unlock()
		return "", types.NotFoundf("team %s not found", teamID)
	}
	if !team.HasMember(from) {
		team.Members = append(team.Members, from)
		b.persistTeam(team)
	}
	recipients := make([]string, 0, len(team.Members))
	for _, m := range team.Members {
		if m != from {
			recipients = append(recipients, m)
		}
	}
	b.mu.Unlock()

	return b.fanOut(TypeTeam, from, teamID, recipients, subject, body, priority, metadata)
}

// Broadcast delivers to every agent in the fleet whose role is in
// targetRoles, or to all agents when targetRoles is empty. The sender
// is excluded.
func (b *Bus) Broadcast(from, subject, body string, targetRoles []types.Role, priority Priority, metadata map[string]string) (string, error) {
	priority, err := validatePriority(priority)
	if err != nil {
		return "", err
	}
	for _, role := range targetRoles {
		if !types.ValidRole(role) {
			return "", types.InvalidArgumentf("unknown target role %q", role)
		}
	}

	all, err := b.directory.List("", true)
	if err != nil {
		return "", err
	}
	var recipients []string
	for _, agent := range all {
		if agent.ID == from {
			continue
		}
		if len(targetRoles) == 0 || roleIn(agent.Role, targetRoles) {
			recipients = append(recipients, agent.ID)
		}
	}
	return b.fanOut(TypeBroadcast, from, "", recipients, subject, body, priority, metadata)
}

// RespondToCollaboration records an agent's answer on the request and
// notifies the requester with a collaboration_response message.
func (b *Bus) RespondToCollaboration(agentID, requestID string, response CollabResponse, note string) (*Message, error) {
	if !response.Valid() {
		return nil, types.InvalidArgumentf("unknown collaboration response %q", response)
	}

	b.mu.Lock()
	var request *Message
	for _, entry := range b.byID[requestID] {
		if entry.To == agentID {
			request = entry
			break
		}
	}
	if request == nil {
		b.mu.Unlock()
		return nil, types.NotFoundf("collaboration request %s for %s not found", requestID, agentID)
	}
	if request.Type != TypeCollabRequest {
		b.mu.Unlock()
		return nil, types.InvalidArgumentf("message %s is not a collaboration request", requestID)
	}
	if request.Response != "" {
		b.mu.Unlock()
		return nil, types.Conflictf("collaboration request %s already answered", requestID)
	}
	now := time.Now()
	request.Response = response
	request.RepliedAt = &now
	if b.store != nil {
		if err := b.store.SetResponse(request.Seq, response, now); err != nil {
			log.Printf("[MSGBUS] Failed to persist response: %v", err)
		}
	}
	requester := request.From
	subject := request.Subject
	b.mu.Unlock()

	metadata := map[string]string{"request_id": requestID, "response": string(response)}
	return b.sendOne(TypeCollabReply, agentID, requester, "", "Re: "+subject, note, PriorityHigh, metadata)
}

// ListMessages returns the agent's mailbox newest-first
func (b *Bus) ListMessages(agentID string, unreadOnly bool, limit int) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	box := b.mailboxes[agentID]
	out := make([]*Message, 0, len(box))
	for i := len(box) - 1; i >= 0; i-- {
		msg := box[i]
		if unreadOnly && msg.Read {
			continue
		}
		out = append(out, cloneMessage(msg))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// MarkRead marks one mailbox entry read. Only the recipient may do so.
func (b *Bus) MarkRead(agentID, messageID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	copies, ok := b.byID[messageID]
	if !ok {
		return false, types.NotFoundf("message %s not found", messageID)
	}
	for _, msg := range copies {
		if msg.To != agentID {
			continue
		}
		if msg.Read {
			return false, nil
		}
		msg.Read = true
		if b.store != nil {
			if err := b.store.MarkRead(msg.Seq); err != nil {
				log.Printf("[MSGBUS] Failed to persist read flag: %v", err)
			}
		}
		return true, nil
	}
	return false, types.PermissionDeniedf("agent %s is not a recipient of %s", agentID, messageID)
}

// CreateTeam registers a team with an initial member list
func (b *Bus) CreateTeam(projectID, name string, members []string) (*Team, error) {
	if name == "" {
		return nil, types.InvalidArgumentf("team name is required")
	}
	for _, m := range members {
		if _, err := b.directory.Get(m); err != nil {
			return nil, err
		}
	}
	team := &Team{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		Members:   append([]string(nil), members...),
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	b.teams[team.ID] = team
	b.persistTeam(team)
	b.mu.Unlock()
	return team, nil
}

// Team returns a team by id
func (b *Bus) Team(teamID string) (*Team, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	team, ok := b.teams[teamID]
	if !ok {
		return nil, types.NotFoundf("team %s not found", teamID)
	}
	clone := *team
	clone.Members = append([]string(nil), team.Members...)
	return &clone, nil
}

// UnreadCount returns the number of unread messages for the agent
func (b *Bus) UnreadCount(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, msg := range b.mailboxes[agentID] {
		if !msg.Read {
			count++
		}
	}
	return count
}

func (b *Bus) sendOne(msgType MessageType, from, to, teamID, subject, body string, priority Priority, metadata map[string]string) (*Message, error) {
	priority, err := validatePriority(priority)
	if err != nil {
		return nil, err
	}
	if from != SystemSender {
		if _, err := b.directory.Get(from); err != nil {
			return nil, err
		}
	}
	if _, err := b.directory.Get(to); err != nil {
		return nil, err
	}

	b.mu.Lock()
	msg := b.deliverLocked(msgType, uuid.New().String(), from, to, teamID, subject, body, priority, metadata)
	b.mu.Unlock()

	b.notify(msg)
	return cloneMessage(msg), nil
}

func (b *Bus) fanOut(msgType MessageType, from, teamID string, recipients []string, subject, body string, priority Priority, metadata map[string]string) (string, error) {
	// Deterministic fan-out order; cross-recipient order is unspecified
	// but stable output helps debugging.
	sort.Strings(recipients)

	id := uuid.New().String()
	b.mu.Lock()
	delivered := make([]*Message, 0, len(recipients))
	for _, to := range recipients {
		delivered = append(delivered, b.deliverLocked(msgType, id, from, to, teamID, subject, body, priority, metadata))
	}
	b.mu.Unlock()

	for _, msg := range delivered {
		b.notify(msg)
	}
	return id, nil
}

// deliverLocked appends one mailbox copy. Callers hold b.mu, which
// keeps per-(sender,recipient) order equal to send order.
func (b *Bus) deliverLocked(msgType MessageType, id, from, to, teamID, subject, body string, priority Priority, metadata map[string]string) *Message {
	msg := &Message{
		ID:       id,
		Type:     msgType,
		From:     from,
		To:       to,
		TeamID:   teamID,
		Subject:  subject,
		Body:     body,
		Priority: priority,
		Metadata: metadata,
		SentAt:   time.Now(),
	}
	if b.store != nil {
		if err := b.store.Insert(msg); err != nil {
			log.Printf("[MSGBUS] Failed to persist message %s: %v", msg.ID, err)
		}
	}
	if msg.Seq == 0 {
		b.seq++
		msg.Seq = b.seq
	} else if msg.Seq > b.seq {
		b.seq = msg.Seq
	}
	b.mailboxes[to] = append(b.mailboxes[to], msg)
	b.byID[id] = append(b.byID[id], msg)
	return msg
}

func (b *Bus) persistTeam(team *Team) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveTeam(team); err != nil {
		log.Printf("[MSGBUS] Failed to persist team %s: %v", team.ID, err)
	}
}

func (b *Bus) notify(msg *Message) {
	if b.sink != nil {
		b.sink(cloneMessage(msg))
	}
}

func roleIn(role types.Role, roles []types.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func cloneMessage(m *Message) *Message {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
