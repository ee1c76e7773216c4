// Package presence tracks per-user availability driven by websocket
// connection lifecycle events and heartbeats.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alumnet/internal/models"
	"alumnet/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Status is a user's availability state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// live reports whether the status requires an active connection.
func (s Status) live() bool {
	return s == StatusOnline || s == StatusAway || s == StatusBusy
}

// manual reports whether the status was chosen by the user rather than
// derived from connection state. Heartbeats never override a manual status.
func (s Status) manual() bool {
	return s == StatusAway || s == StatusBusy
}

// ValidManualStatus reports whether s can be requested via SetStatus.
// Offline is excluded: it is only reachable by disconnect or expiry.
func ValidManualStatus(s Status) bool {
	return s == StatusOnline || s == StatusAway || s == StatusBusy
}

// Record is the authoritative presence state for one user. Every user has
// exactly one record; users never seen resolve to a default offline record.
type Record struct {
	UserID       uint      `json:"user_id"`
	Status       Status    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
	ConnectionID string    `json:"-"`
}

const (
	onlineSetKey    = "presence:online_users"
	lastSeenKeyTmpl = "presence:last_seen:%d"
)

// Tracker owns the in-memory presence map. Connection-scoped events carry a
// connection ID; events whose ID does not match the record's current
// connection are stale and dropped, so an out-of-order disconnect from a
// dead connection cannot knock a freshly reconnected user offline.
//
// Redis mirrors the online set and last-seen timestamps for other instances
// to read. Mirror writes are best-effort; failures are logged and never
// surface to the caller.
type Tracker struct {
	mu      sync.RWMutex
	records map[uint]*Record

	timeout    time.Duration
	sweepEvery time.Duration

	rdb      *redis.Client
	logger   *slog.Logger
	onChange func(userID uint, status Status)

	stopCh   chan struct{}
	stopOnce sync.Once

	// test seam
	now func() time.Time
}

// NewTracker creates a presence tracker. rdb may be nil; the tracker then
// runs purely in memory.
func NewTracker(rdb *redis.Client, logger *slog.Logger, timeout, sweepEvery time.Duration) *Tracker {
	return &Tracker{
		records:    make(map[uint]*Record),
		timeout:    timeout,
		sweepEvery: sweepEvery,
		rdb:        rdb,
		logger:     logger,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// OnChange registers the callback invoked whenever a user's status changes.
// Must be called before Start.
func (t *Tracker) OnChange(fn func(userID uint, status Status)) {
	t.onChange = fn
}

// Connect marks the user online under the given connection ID. A new
// connection always supersedes the previous one: the most recent connection
// wins, and events from the superseded connection become stale.
func (t *Tracker) Connect(userID uint, connID string) {
	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok {
		rec = &Record{UserID: userID}
		t.records[userID] = rec
	}
	changed := rec.Status != StatusOnline
	rec.Status = StatusOnline
	rec.ConnectionID = connID
	rec.LastSeen = t.now()
	t.mu.Unlock()

	t.mirror(userID, StatusOnline)
	t.updateGauge()
	if changed {
		t.emit(userID, StatusOnline)
	}
}

// Heartbeat refreshes the user's liveness window. Heartbeats from a
// superseded connection are dropped. Returns whether the heartbeat was
// accepted.
func (t *Tracker) Heartbeat(userID uint, connID string) bool {
	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok || rec.ConnectionID != connID {
		t.mu.Unlock()
		return false
	}
	rec.LastSeen = t.now()
	var revived bool
	if !rec.Status.live() {
		rec.Status = StatusOnline
		revived = true
	}
	status := rec.Status
	t.mu.Unlock()

	t.mirror(userID, status)
	if revived {
		t.updateGauge()
		t.emit(userID, status)
	}
	return true
}

// Disconnect marks the user offline if connID is still the active
// connection. Disconnects from superseded connections are ignored, which
// keeps a reconnect-then-old-socket-closes sequence from flapping the user
// offline.
func (t *Tracker) Disconnect(userID uint, connID string) {
	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok || rec.ConnectionID != connID {
		t.mu.Unlock()
		return
	}
	rec.Status = StatusOffline
	rec.ConnectionID = ""
	rec.LastSeen = t.now()
	t.mu.Unlock()

	t.mirror(userID, StatusOffline)
	t.updateGauge()
	t.emit(userID, StatusOffline)
}

// SetStatus applies a manual status change for the user's current
// connection. Requests from superseded connections are dropped without
// error. Only online, away and busy can be requested.
func (t *Tracker) SetStatus(userID uint, connID string, status Status) error {
	if !ValidManualStatus(status) {
		return models.NewValidationError(fmt.Sprintf("invalid presence status %q", status))
	}

	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok || rec.ConnectionID != connID {
		t.mu.Unlock()
		return nil
	}
	changed := rec.Status != status
	rec.Status = status
	rec.LastSeen = t.now()
	t.mu.Unlock()

	t.mirror(userID, status)
	if changed {
		t.emit(userID, status)
	}
	return nil
}

// Status returns the user's presence record. Lookups never fail: unknown
// users resolve to a default offline record.
func (t *Tracker) Status(userID uint) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.records[userID]; ok {
		return *rec
	}
	return Record{UserID: userID, Status: StatusOffline}
}

// OnlineUserIDs returns the ids of all users whose status is currently a
// live one (online, away or busy).
func (t *Tracker) OnlineUserIDs() []uint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint, 0, len(t.records))
	for id, rec := range t.records {
		if rec.Status.live() {
			out = append(out, id)
		}
	}
	return out
}

// Start launches the background sweep loop.
func (t *Tracker) Start() {
	go func() {
		ticker := time.NewTicker(t.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				expired := t.Sweep()
				observability.PresenceSweepsTotal.WithLabelValues("run").Inc()
				if expired > 0 {
					observability.PresenceSweepsTotal.WithLabelValues("expired").Add(float64(expired))
				}
			case <-t.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Sweep expires every live record whose last heartbeat is older than the
// timeout. Missed heartbeats take effect here even if the connection never
// sent a disconnect. Returns the number of records expired.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.timeout)

	t.mu.Lock()
	var expired []uint
	for id, rec := range t.records {
		if rec.Status.live() && rec.LastSeen.Before(cutoff) {
			rec.Status = StatusOffline
			rec.ConnectionID = ""
			expired = append(expired, id)
		}
	}
	t.mu.Unlock()

	for _, id := range expired {
		t.mirror(id, StatusOffline)
		t.emit(id, StatusOffline)
	}
	if len(expired) > 0 {
		t.updateGauge()
	}
	return len(expired)
}

func (t *Tracker) emit(userID uint, status Status) {
	if t.onChange != nil {
		t.onChange(userID, status)
	}
}

func (t *Tracker) updateGauge() {
	observability.PresenceOnlineUsers.Set(float64(len(t.OnlineUserIDs())))
}

// mirror pushes the user's state to Redis for other instances. Best-effort.
func (t *Tracker) mirror(userID uint, status Status) {
	if t.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if status.live() {
		if err = t.rdb.SAdd(ctx, onlineSetKey, userID).Err(); err == nil {
			err = t.rdb.Set(ctx, fmt.Sprintf(lastSeenKeyTmpl, userID), t.now().Unix(), t.timeout).Err()
		}
	} else {
		err = t.rdb.SRem(ctx, onlineSetKey, userID).Err()
	}
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_mirror").Inc()
		if t.logger != nil {
			t.logger.Warn("presence mirror write failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
	}
}
