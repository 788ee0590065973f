// Package coordinator owns the session membership state machine: joins,
// leaves, role changes, mute state, and the authorization rules guarding
// them. It is the sole writer of Participant state; handlers go through
// its entry points and read snapshots.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"voicehub/contract"
	"voicehub/domain"
	"voicehub/errors"
)

// DefaultSpeakingThreshold is the audio level above which a participant
// is heuristically flagged as speaking.
const DefaultSpeakingThreshold = 0.12

// endedRetention bounds how long an ended session id keeps answering with
// ErrSessionEnded before being forgotten entirely. Past that, the id is
// indistinguishable from one that never existed.
const endedRetention = time.Minute

var _ contract.ICoordinator = (*Coordinator)(nil)

type Coordinator struct {
	mu                sync.RWMutex
	log               *slog.Logger
	directory         contract.Directory
	audit             contract.AuditTrail
	speakingThreshold float64
	now               func() time.Time

	sessions     map[string]*domain.Session
	participants map[string]map[string]*domain.Participant // session -> user
	speakingFrom map[string]time.Time                      // session|user -> speaking start
	endedAt      map[string]time.Time                      // ended session tombstones
}

func NewCoordinator(log *slog.Logger, directory contract.Directory, audit contract.AuditTrail, speakingThreshold float64) *Coordinator {
	if speakingThreshold <= 0 || speakingThreshold > 1 {
		speakingThreshold = DefaultSpeakingThreshold
	}
	return &Coordinator{
		log:               log,
		directory:         directory,
		audit:             audit,
		speakingThreshold: speakingThreshold,
		now:               time.Now,
		sessions:          make(map[string]*domain.Session),
		participants:      make(map[string]map[string]*domain.Participant),
		speakingFrom:      make(map[string]time.Time),
		endedAt:           make(map[string]time.Time),
	}
}

// Join creates the session on first use and admits (or reconnects) the
// participant. The first member of a session is promoted to host; later
// joiners get the requested role capped at participant authority.
func (c *Coordinator) Join(ctx context.Context, sessionID, userID, connID string, requested domain.Role) (domain.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[sessionID]; !ok {
		c.sessions[sessionID] = domain.NewSession(sessionID)
		c.participants[sessionID] = make(map[string]*domain.Participant)
		delete(c.endedAt, sessionID)
	}

	members := c.participants[sessionID]
	now := c.now()

	if p, exists := members[userID]; exists {
		// Reconnect path: the connection id is overwritten, role survives.
		p.ConnectionID = connID
		p.Status = domain.StatusActive
		p.LastActivity = now
		c.record(ctx, sessionID, "participant_reconnected", userID, "", "")
		return *p, nil
	}

	role := domain.RoleParticipant
	if len(members) == 0 {
		role = domain.RoleHost
	} else if requested != "" && requested.Rank() <= domain.RoleParticipant.Rank() {
		role = requested
	}

	p := &domain.Participant{
		SessionID:    sessionID,
		UserID:       userID,
		DisplayName:  c.displayName(ctx, userID),
		Role:         role,
		Status:       domain.StatusActive,
		ConnectionID: connID,
		JoinedAt:     now,
		LastActivity: now,
	}
	members[userID] = p

	c.record(ctx, sessionID, "participant_joined", userID, "", string(role))
	return *p, nil
}

// Leave removes the participant; when the last one goes, the session ends.
func (c *Coordinator) Leave(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	members, ok := c.participants[sessionID]
	if !ok {
		return c.missingSessionLocked(sessionID)
	}
	if _, ok := members[userID]; !ok {
		return fmt.Errorf("%w: participant %s in session %s", errors.ErrNotFound, userID, sessionID)
	}

	delete(members, userID)
	delete(c.speakingFrom, speakKey(sessionID, userID))
	c.record(ctx, sessionID, "participant_left", userID, "", "")

	if len(members) == 0 {
		c.endLocked(ctx, sessionID, "")
	}
	return nil
}

// Disconnect marks the participant disconnected but keeps the membership
// record so a reconnect can restore it.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.getLocked(sessionID, userID)
	if err != nil {
		return err
	}
	p.Status = domain.StatusDisconnected
	p.ConnectionID = ""
	delete(c.speakingFrom, speakKey(sessionID, userID))
	c.record(ctx, sessionID, "participant_disconnected", userID, "", "")
	return nil
}

// SetMuted flips the mute state of targetUserID. Allowed for the target
// themselves, or for an actor holding admin-or-better authority above the
// target's.
func (c *Coordinator) SetMuted(ctx context.Context, sessionID, targetUserID string, muted bool, actingUserID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.getLocked(sessionID, targetUserID)
	if err != nil {
		return err
	}
	if err := c.authorizeLocked(sessionID, actingUserID, target); err != nil {
		return err
	}

	if muted {
		c.stopSpeakingLocked(target)
		target.Status = domain.StatusMuted
	} else if target.Status == domain.StatusMuted {
		target.Status = domain.StatusActive
	}

	kind := "participant_muted"
	if !muted {
		kind = "participant_unmuted"
	}
	c.record(ctx, sessionID, kind, actingUserID, targetUserID, "")
	return nil
}

// ChangeRole reassigns the target's role under the same authorization rule
// as SetMuted, with the extra guard that nobody hands out authority above
// their own.
func (c *Coordinator) ChangeRole(ctx context.Context, sessionID, targetUserID string, newRole domain.Role, actingUserID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.getLocked(sessionID, targetUserID)
	if err != nil {
		return err
	}
	if err := c.authorizeLocked(sessionID, actingUserID, target); err != nil {
		return err
	}

	actor, err := c.getLocked(sessionID, actingUserID)
	if err != nil {
		return err
	}
	if newRole.Rank() > actor.Role.Rank() {
		return fmt.Errorf("%w: cannot grant %s above own authority %s", errors.ErrPermissionDenied, newRole, actor.Role)
	}

	target.Role = newRole
	c.record(ctx, sessionID, "role_changed", actingUserID, targetUserID, string(newRole))
	return nil
}

// UpdateAudioLevel stores the self-reported level, clamped to [0,1], and
// toggles speaking state around the threshold. No authorization check:
// the value is transient and self-reported.
func (c *Coordinator) UpdateAudioLevel(sessionID, userID string, level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.getLocked(sessionID, userID)
	if err != nil {
		return err
	}

	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	p.AudioLevel = level
	p.LastActivity = c.now()

	// A muted participant never flips to speaking, whatever the level.
	if p.Status == domain.StatusMuted {
		return nil
	}

	if level >= c.speakingThreshold {
		if p.Status != domain.StatusSpeaking {
			p.Status = domain.StatusSpeaking
			c.speakingFrom[speakKey(sessionID, userID)] = c.now()
		}
		return nil
	}

	if p.Status == domain.StatusSpeaking {
		c.stopSpeakingLocked(p)
		p.Status = domain.StatusActive
	}
	return nil
}

// Touch refreshes last-activity and optionally counts one message.
func (c *Coordinator) Touch(sessionID, userID string, countMessage bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.getLocked(sessionID, userID)
	if err != nil {
		return
	}
	p.LastActivity = c.now()
	if countMessage {
		p.MessageCount++
	}
}

// CheckPermission is the pure predicate handlers consult before privileged
// operations. Host and admin pass everything; guest and observer fail all
// write-capable actions.
func (c *Coordinator) CheckPermission(sessionID, userID, action string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, err := c.getLocked(sessionID, userID)
	if err != nil {
		return false
	}
	if p.Role.Rank() >= domain.RoleAdmin.Rank() {
		return true
	}

	switch action {
	case "manage_session", "mute_others", "remove_participant", "change_role":
		return false
	case "send_message", "send_audio", "create_poll", "share_file", "react":
		return p.Role.Rank() >= domain.RoleParticipant.Rank()
	default:
		// Read-only actions are open to every member.
		return true
	}
}

// Participants returns a stable snapshot ordered by join time.
func (c *Coordinator) Participants(sessionID string) []domain.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := lo.Map(lo.Values(c.participants[sessionID]), func(p *domain.Participant, _ int) domain.Participant {
		return *p
	})
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].JoinedAt.Equal(snapshot[j].JoinedAt) {
			return snapshot[i].UserID < snapshot[j].UserID
		}
		return snapshot[i].JoinedAt.Before(snapshot[j].JoinedAt)
	})
	return snapshot
}

func (c *Coordinator) Get(sessionID, userID string) (domain.Participant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, err := c.getLocked(sessionID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	return *p, nil
}

// EndSession ends the session explicitly; requires manage_session authority.
func (c *Coordinator) EndSession(ctx context.Context, sessionID, actingUserID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[sessionID]; !ok {
		return c.missingSessionLocked(sessionID)
	}
	actor, err := c.getLocked(sessionID, actingUserID)
	if err != nil {
		return err
	}
	if actor.Role.Rank() < domain.RoleAdmin.Rank() {
		return fmt.Errorf("%w: %s may not end session %s", errors.ErrPermissionDenied, actingUserID, sessionID)
	}

	c.endLocked(ctx, sessionID, actingUserID)
	return nil
}

// authorizeLocked enforces the shared mute/role rule: self-action is free,
// otherwise the actor needs admin-or-better rank strictly above the target.
func (c *Coordinator) authorizeLocked(sessionID, actingUserID string, target *domain.Participant) error {
	if actingUserID == target.UserID {
		return nil
	}
	actor, err := c.getLocked(sessionID, actingUserID)
	if err != nil {
		return fmt.Errorf("%w: actor %s not in session %s", errors.ErrPermissionDenied, actingUserID, sessionID)
	}
	if actor.Role.Rank() < domain.RoleAdmin.Rank() || actor.Role.Rank() <= target.Role.Rank() {
		return fmt.Errorf("%w: %s (%s) may not act on %s (%s)",
			errors.ErrPermissionDenied, actor.UserID, actor.Role, target.UserID, target.Role)
	}
	return nil
}

// missingSessionLocked tells an ended session apart from one that never
// existed, as long as the tombstone is within retention.
func (c *Coordinator) missingSessionLocked(sessionID string) error {
	if _, ended := c.endedAt[sessionID]; ended {
		return fmt.Errorf("%w: session %s", errors.ErrSessionEnded, sessionID)
	}
	return fmt.Errorf("%w: session %s", errors.ErrNotFound, sessionID)
}

func (c *Coordinator) getLocked(sessionID, userID string) (*domain.Participant, error) {
	members, ok := c.participants[sessionID]
	if !ok {
		return nil, c.missingSessionLocked(sessionID)
	}
	p, ok := members[userID]
	if !ok {
		return nil, fmt.Errorf("%w: participant %s in session %s", errors.ErrNotFound, userID, sessionID)
	}
	return p, nil
}

// endLocked drops every record the session holds and leaves a tombstone
// behind so late messages still get a session-ended answer. Tombstones
// past retention are reaped on the spot, keeping the maps bounded by the
// number of live sessions.
func (c *Coordinator) endLocked(ctx context.Context, sessionID, actingUserID string) {
	delete(c.sessions, sessionID)
	delete(c.participants, sessionID)
	for key := range c.speakingFrom {
		if strings.HasPrefix(key, sessionID+"|") {
			delete(c.speakingFrom, key)
		}
	}

	now := c.now()
	c.endedAt[sessionID] = now
	for id, at := range c.endedAt {
		if now.Sub(at) > endedRetention {
			delete(c.endedAt, id)
		}
	}

	c.record(ctx, sessionID, "session_ended", actingUserID, "", "")
	c.log.Info("Session ended", "session", sessionID)
}

func (c *Coordinator) stopSpeakingLocked(p *domain.Participant) {
	key := speakKey(p.SessionID, p.UserID)
	if from, ok := c.speakingFrom[key]; ok {
		p.SpeakingTime += c.now().Sub(from)
		delete(c.speakingFrom, key)
	}
}

// record hands the audit entry to the external persistence collaborator.
// Audit failures are logged, never propagated: durable history is not this
// core's responsibility.
func (c *Coordinator) record(ctx context.Context, sessionID, kind, actorID, targetID, detail string) {
	if c.audit == nil {
		return
	}
	entry := domain.AuditEntry{
		SessionID: sessionID,
		Kind:      kind,
		ActorID:   actorID,
		TargetID:  targetID,
		Detail:    detail,
		At:        c.now().UTC(),
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		c.log.Warn("Audit record failed", "kind", kind, "session", sessionID, "error", err)
	}
}

func (c *Coordinator) displayName(ctx context.Context, userID string) string {
	if c.directory == nil {
		return userID
	}
	name, err := c.directory.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func speakKey(sessionID, userID string) string {
	return sessionID + "|" + userID
}
