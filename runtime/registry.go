// Package runtime hosts the connection registry, the message router, and
// the handler table. It orchestrates delivery without containing business
// logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicehub/contract"
	"voicehub/domain"
	"voicehub/domain/event"
	"voicehub/errors"
)

var _ contract.IRegistry = (*Registry)(nil)

type connection struct {
	record domain.ConnectionRecord
	sink   contract.EventSink
}

// RegistryStats is the operator-facing view of the connection table.
type RegistryStats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Users       int `json:"users"`
}

// Registry maps a connection identifier to its (session, user) pair and
// owns the unicast/broadcast primitives. It is the sole writer of
// connection records; every other component reads through its accessors.
type Registry struct {
	mu        sync.RWMutex
	log       *slog.Logger
	now       func() time.Time
	conns     map[string]*connection
	bySession map[string]map[string]struct{} // session -> connIDs
	byUser    map[string]map[string]struct{} // user -> connIDs
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:       log,
		now:       time.Now,
		conns:     make(map[string]*connection),
		bySession: make(map[string]map[string]struct{}),
		byUser:    make(map[string]map[string]struct{}),
	}
}

// Register records a live connection and indexes it by session and user.
func (r *Registry) Register(connID, sessionID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.conns[connID] = &connection{
		record: domain.ConnectionRecord{
			ConnID:       connID,
			SessionID:    sessionID,
			UserID:       userID,
			ConnectedAt:  now,
			LastActivity: now,
		},
		sink: sink,
	}

	if _, ok := r.bySession[sessionID]; !ok {
		r.bySession[sessionID] = make(map[string]struct{})
	}
	r.bySession[sessionID][connID] = struct{}{}

	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connID] = struct{}{}
}

// Unregister drops a connection and cleans up empty index sets so the
// maps never leak over session churn.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(connID)
}

func (r *Registry) unregisterLocked(connID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if set, ok := r.bySession[conn.record.SessionID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.bySession, conn.record.SessionID)
		}
	}
	if set, ok := r.byUser[conn.record.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, conn.record.UserID)
		}
	}
}

func (r *Registry) Lookup(connID string) (domain.ConnectionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return domain.ConnectionRecord{}, false
	}
	return conn.record, true
}

// HasUser reports whether the user still has at least one live connection.
func (r *Registry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Touch refreshes the last-activity timestamp used by idle cleanup.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		conn.record.LastActivity = r.now()
	}
}

// Unicast delivers one event to one connection.
func (r *Registry) Unicast(ctx context.Context, connID string, e event.Outbound) error {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()

	if !ok {
		return errors.ErrNotFound
	}
	return conn.sink.Consume(ctx, e)
}

// BroadcastSession fans one event out to every connection registered in
// the session. Sinks are collected under the read lock and consumed
// outside of it; a failing sink only loses its own copy.
func (r *Registry) BroadcastSession(ctx context.Context, sessionID string, e event.Outbound) {
	r.fanout(ctx, r.collect(r.bySession, sessionID), e)
}

// BroadcastUser fans one event out to every connection of one user,
// whatever session each connection is attached to.
func (r *Registry) BroadcastUser(ctx context.Context, userID string, e event.Outbound) {
	r.fanout(ctx, r.collect(r.byUser, userID), e)
}

func (r *Registry) collect(index map[string]map[string]struct{}, key string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := index[key]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(set))
	for connID := range set {
		if conn, exists := r.conns[connID]; exists {
			sinks = append(sinks, conn.sink)
		}
	}
	return sinks
}

func (r *Registry) fanout(ctx context.Context, sinks []contract.EventSink, e event.Outbound) {
	for _, sink := range sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Debug("Sink dropped broadcast event", "type", e.Type, "error", err)
		}
	}
}

// CleanupInactive force-drops connections idle longer than maxIdle and
// returns how many were removed. Exposed to operators via the admin API.
func (r *Registry) CleanupInactive(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var stale []string
	for connID, conn := range r.conns {
		if conn.record.LastActivity.Before(cutoff) {
			stale = append(stale, connID)
		}
	}
	for _, connID := range stale {
		r.unregisterLocked(connID)
	}
	if len(stale) > 0 {
		r.log.Info("Cleaned up inactive connections", "count", len(stale))
	}
	return len(stale)
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Connections: len(r.conns),
		Sessions:    len(r.bySession),
		Users:       len(r.byUser),
	}
}
