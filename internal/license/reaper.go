package license

import (
	"context"
	"log"
	"time"

	"serwer-licencji/internal/database"
	"serwer-licencji/internal/models"
	"serwer-licencji/internal/registry"
	"serwer-licencji/internal/ws"
)

// Reaper reclaims seats whose holder went silent: every interval it scans
// a snapshot of the registry and expires sessions whose heartbeat is older
// than the staleness threshold.
type Reaper struct {
	store    *database.Store
	registry *registry.Registry
	hub      *ws.Hub
	interval time.Duration
	timeout  time.Duration
}

func NewReaper(store *database.Store, reg *registry.Registry, hub *ws.Hub, interval, timeout time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		registry: reg,
		hub:      hub,
		interval: interval,
		timeout:  timeout,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	log.Printf("Reaper uruchomiony (interwał %s, próg %s)", r.interval, r.timeout)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reaper zatrzymany")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. A store failure for one entry is logged and the
// pass moves on; the next sweep retries it.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now()
	reaped := 0

	for _, entry := range r.registry.Snapshot() {
		if now.Sub(entry.LastHeartbeat) <= r.timeout {
			continue
		}

		log.Printf("Session %s has expired (no heartbeat for more than %s)", entry.SessionID, r.timeout)

		expired, err := r.store.ExpireSession(ctx, entry.SessionID)
		if err != nil {
			log.Printf("Error expiring session %s: %v", entry.SessionID, err)
			continue
		}

		r.registry.Remove(entry.SessionID)
		if !expired {
			// Someone checked the session in between the snapshot and the
			// conditional write. The registry entry was stale either way.
			continue
		}

		reaped++
		reapedTotal.Inc()

		sessionID := entry.SessionID
		params := database.AuditEventParams{
			Action:    models.AuditExpire,
			SessionID: &sessionID,
			Detail:    strPtr("no heartbeat for more than " + r.timeout.String()),
		}
		if entry.SoftwareID != "" {
			params.SoftwareID = strPtr(entry.SoftwareID)
			userID := entry.UserID
			params.UserID = &userID
		}
		if entry.ClientAddress != "" {
			params.ClientAddress = strPtr(entry.ClientAddress)
		}
		if err := r.store.InsertAuditEvent(ctx, params); err != nil {
			log.Printf("Failed to write audit event for expired session %s: %v", entry.SessionID, err)
		}

		r.hub.Publish(ws.Event{
			Event:      "expire",
			SoftwareID: entry.SoftwareID,
			UserID:     entry.UserID,
			SessionID:  entry.SessionID.String(),
			Time:       now,
		})
	}

	activeSessions.Set(float64(r.registry.Len()))
	if reaped > 0 {
		log.Printf("Marked %d sessions as expired", reaped)
	}
}
