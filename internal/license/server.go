package license

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"serwer-licencji/internal/config"
	"serwer-licencji/internal/database"
	"serwer-licencji/internal/models"
	"serwer-licencji/internal/registry"
	"serwer-licencji/internal/ws"
)

// Server speaks the license wire protocol: one framed JSON request, one
// framed JSON response per connection.
type Server struct {
	config   *config.Config
	store    *database.Store
	registry *registry.Registry
	hub      *ws.Hub

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(cfg *config.Config, store *database.Store, reg *registry.Registry, hub *ws.Hub) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		registry: reg,
		hub:      hub,
	}
}

// RebuildRegistry loads every active session from the store into the
// registry. Called at startup; the store is the source of truth and
// sessions held across a restart keep their seats.
func (s *Server) RebuildRegistry(ctx context.Context) error {
	sessions, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	s.registry.Rebuild(sessions)
	activeSessions.Set(float64(s.registry.Len()))
	return nil
}

func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.License.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	log.Printf("Serwer licencji nasłuchuje na %s", listener.Addr())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Addr reports the bound listen address, useful when the configured port
// is 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	remoteAddr := hostOnly(conn.RemoteAddr().String())

	var req Request
	reader := bufio.NewReader(conn)
	if err := ReadMessage(reader, s.config.License.MaxMessageBytes, &req); err != nil {
		log.Printf("Error reading request from %s: %v", remoteAddr, err)
		WriteMessage(conn, errorResponse(CodeBadRequest, "Malformed request"))
		return
	}

	resp := s.process(ctx, req, remoteAddr)
	if err := WriteMessage(conn, resp); err != nil {
		log.Printf("Error writing response to %s: %v", remoteAddr, err)
	}
}

func (s *Server) process(ctx context.Context, req Request, remoteAddr string) Response {
	switch req.Command {
	case CommandCheckout:
		return s.checkout(ctx, req, remoteAddr)
	case CommandCheckin:
		return s.checkin(ctx, req, remoteAddr)
	case CommandHeartbeat:
		return s.heartbeat(ctx, req)
	case CommandQuery:
		return s.query(ctx, req)
	default:
		log.Printf("Unknown command received: %q", req.Command)
		return errorResponse(CodeBadRequest, "Unknown command")
	}
}

func (s *Server) checkout(ctx context.Context, req Request, remoteAddr string) Response {
	log.Printf("License checkout request: software=%s, user=%d, host=%s", req.SoftwareID, req.UserID, req.Hostname)

	result, err := s.store.CheckoutLicense(ctx, database.CheckoutParams{
		SoftwareID:     req.SoftwareID,
		UserID:         req.UserID,
		ClientHostname: req.Hostname,
		ClientAddress:  remoteAddr,
	})
	if err != nil {
		code := CodeTransient
		message := "Error checking out license"
		switch {
		case errors.Is(err, database.ErrSoftwareNotFound):
			code, message = CodeNotFound, "Software not found"
		case errors.Is(err, database.ErrSessionExists):
			code, message = CodeConflict, "You already have an active license for this software"
		case errors.Is(err, database.ErrNoAllocation):
			code, message = CodePermissionDenied, "You need to register for a license in the application first. Please complete license registration."
		case errors.Is(err, database.ErrNoSeatsAvailable):
			code, message = CodeCapacityExhausted, "No licenses available"
		default:
			log.Printf("Error checking out license: %v", err)
		}

		denialsTotal.WithLabelValues(code).Inc()
		s.auditDeny(ctx, req, remoteAddr, message)
		s.hub.Publish(ws.Event{Event: "deny", SoftwareID: req.SoftwareID, UserID: req.UserID, Time: time.Now()})
		return errorResponse(code, message)
	}

	session := result.Session
	s.registry.Add(registry.Entry{
		SessionID:     session.SessionID,
		AllocationID:  session.AllocationID,
		SoftwareID:    req.SoftwareID,
		UserID:        req.UserID,
		ClientAddress: remoteAddr,
		LastHeartbeat: session.LastHeartbeat,
	})
	activeSessions.Set(float64(s.registry.Len()))
	checkoutsTotal.WithLabelValues(req.SoftwareID).Inc()

	s.audit(ctx, database.AuditEventParams{
		SoftwareID:    &req.SoftwareID,
		UserID:        &req.UserID,
		Action:        models.AuditCheckout,
		ClientAddress: &remoteAddr,
		SessionID:     &session.SessionID,
		Detail:        strPtr("host=" + req.Hostname),
	})
	s.hub.Publish(ws.Event{
		Event:      "checkout",
		SoftwareID: req.SoftwareID,
		UserID:     req.UserID,
		SessionID:  session.SessionID.String(),
		Time:       time.Now(),
	})

	log.Printf("License checked out successfully: session=%s", session.SessionID)

	expiry := ""
	if result.Allocation.ExpiryDate != nil {
		expiry = result.Allocation.ExpiryDate.Format(time.RFC3339)
	}

	return Response{
		Status:    StatusSuccess,
		Message:   "License checked out successfully",
		SessionID: session.SessionID.String(),
		Expiry:    expiry,
	}
}

func (s *Server) checkin(ctx context.Context, req Request, remoteAddr string) Response {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return errorResponse(CodeBadRequest, "Missing or invalid session_id")
	}

	log.Printf("License checkin request: session=%s", sessionID)

	entry, tracked := s.registry.Get(sessionID)
	if !tracked {
		// The registry may have lost the entry (restart before any
		// heartbeat reconciled it). Resolve the software from the store
		// while the session is still active, so the audit event and the
		// checkin counter keep their labels.
		info, err := s.store.GetActiveSessionInfo(ctx, sessionID)
		if err != nil {
			log.Printf("Error resolving session %s before checkin: %v", sessionID, err)
		} else if info != nil {
			entry = registry.Entry{
				SessionID:     info.SessionID,
				AllocationID:  info.AllocationID,
				SoftwareID:    info.SoftwareID,
				UserID:        info.UserID,
				ClientAddress: info.ClientAddress,
			}
		}
	}

	closed, err := s.store.CloseSession(ctx, sessionID)
	if err != nil {
		log.Printf("Error checking in license: %v", err)
		return errorResponse(CodeTransient, "Error checking in license")
	}
	if !closed {
		// Conditional write failed: distinguish an unknown session from
		// one that already reached a terminal state.
		session, err := s.store.GetSessionByID(ctx, sessionID)
		if err != nil {
			log.Printf("Error checking in license: %v", err)
			return errorResponse(CodeTransient, "Error checking in license")
		}
		if session == nil {
			return errorResponse(CodeNotFound, "Session not found")
		}
		return errorResponse(CodeConflict, "Session not found or already closed")
	}

	s.registry.Remove(sessionID)
	activeSessions.Set(float64(s.registry.Len()))
	if entry.SoftwareID != "" {
		checkinsTotal.WithLabelValues(entry.SoftwareID).Inc()
	}

	auditParams := database.AuditEventParams{
		Action:        models.AuditCheckin,
		ClientAddress: &remoteAddr,
		SessionID:     &sessionID,
	}
	if entry.SoftwareID != "" {
		auditParams.SoftwareID = strPtr(entry.SoftwareID)
		auditParams.UserID = &entry.UserID
	}
	s.audit(ctx, auditParams)
	s.hub.Publish(ws.Event{
		Event:      "checkin",
		SoftwareID: entry.SoftwareID,
		UserID:     entry.UserID,
		SessionID:  sessionID.String(),
		Time:       time.Now(),
	})

	log.Printf("License checked in successfully: session=%s", sessionID)
	return Response{Status: StatusSuccess, Message: "License checked in successfully"}
}

func (s *Server) heartbeat(ctx context.Context, req Request) Response {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return errorResponse(CodeBadRequest, "Missing or invalid session_id")
	}

	touched, err := s.store.TouchSessionHeartbeat(ctx, sessionID)
	if err != nil {
		log.Printf("Error updating heartbeat: %v", err)
		return errorResponse(CodeTransient, "Error updating heartbeat")
	}
	if !touched {
		log.Printf("Session %s not found or not active", sessionID)
		return errorResponse(CodeNotFound, "Session not found or not active")
	}

	now := time.Now()
	if !s.registry.Touch(sessionID, now) {
		// The store says active but the registry never heard of the
		// session (registry loss is possible, store rows are not).
		// Reconcile from the store instead of letting the reaper miss it.
		info, err := s.store.GetActiveSessionInfo(ctx, sessionID)
		if err != nil {
			log.Printf("Error reconciling session %s into registry: %v", sessionID, err)
		} else if info != nil {
			s.registry.Add(registry.Entry{
				SessionID:     info.SessionID,
				AllocationID:  info.AllocationID,
				SoftwareID:    info.SoftwareID,
				UserID:        info.UserID,
				ClientAddress: info.ClientAddress,
				LastHeartbeat: now,
			})
			activeSessions.Set(float64(s.registry.Len()))
		}
	}
	heartbeatsTotal.Inc()

	return Response{Status: StatusSuccess, Message: "Heartbeat updated"}
}

func (s *Server) query(ctx context.Context, req Request) Response {
	log.Printf("License query request: software=%s", req.SoftwareID)

	usage, err := s.store.GetSoftwareUsage(ctx, req.SoftwareID)
	if err != nil {
		log.Printf("Error querying license: %v", err)
		return errorResponse(CodeTransient, "Error querying license")
	}
	if usage == nil {
		return errorResponse(CodeNotFound, "Software not found")
	}

	return Response{
		Status:            StatusSuccess,
		SoftwareName:      usage.Name,
		Version:           usage.Version,
		TotalLicenses:     usage.MaxSeats,
		ActiveSessions:    usage.ActiveSessions,
		AvailableLicenses: usage.Available,
	}
}

func (s *Server) auditDeny(ctx context.Context, req Request, remoteAddr string, reason string) {
	params := database.AuditEventParams{
		Action:        models.AuditDeny,
		ClientAddress: &remoteAddr,
		Detail:        &reason,
	}
	if req.SoftwareID != "" {
		params.SoftwareID = strPtr(req.SoftwareID)
	}
	if req.UserID != 0 {
		params.UserID = &req.UserID
	}
	s.audit(ctx, params)
}

// audit is best effort: a failed audit insert never fails the operation it
// describes.
func (s *Server) audit(ctx context.Context, params database.AuditEventParams) {
	if err := s.store.InsertAuditEvent(ctx, params); err != nil {
		log.Printf("Failed to write audit event (action=%s): %v", params.Action, err)
	}
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func strPtr(s string) *string {
	return &s
}
