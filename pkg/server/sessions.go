package server

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

var sessionSeq atomic.Uint64

// Session is one client connection. It is created by the connection's
// goroutine and torn down by it.
type Session struct {
	ID     uint64
	conn   net.Conn
	remote string

	writeMu      sync.Mutex
	writeTimeout time.Duration

	// Guarded by Server.mu.
	username string
	roomID   string
	mailbox  []model.Invite
	invited  map[string]bool // room IDs this session was invited to
}

func newSession(conn net.Conn, writeTimeout time.Duration) *Session {
	return &Session{
		ID:           sessionSeq.Add(1),
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: writeTimeout,
		invited:      make(map[string]bool),
	}
}

// Send writes one frame. Concurrent senders never interleave frames, and a
// stalled peer fails the write after writeTimeout.
func (sess *Session) Send(msg *pb.Message) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if sess.writeTimeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(sess.writeTimeout))
	}
	return protocol.WriteMessage(sess.conn, msg)
}

// exclusive runs fn with the write lock held, so no event frame can land
// inside a raw byte stream.
func (sess *Session) exclusive(fn func(conn net.Conn) error) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return fn(sess.conn)
}

// SessionRegistry maps usernames to live sessions. Every method requires
// Server.mu.
type SessionRegistry struct {
	byName map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byName: make(map[string]*Session)}
}

// Register binds username to sess. A username can have one live session.
func (r *SessionRegistry) Register(username string, sess *Session) error {
	if _, ok := r.byName[username]; ok {
		return model.ErrAlreadyOnline
	}
	r.byName[username] = sess
	sess.username = username
	return nil
}

// Lookup returns the live session for username, or nil.
func (r *SessionRegistry) Lookup(username string) *Session {
	return r.byName[username]
}

// Remove drops username. Removing an absent user is a no-op.
func (r *SessionRegistry) Remove(username string) {
	delete(r.byName, username)
}

// Count returns the number of logged-in sessions.
func (r *SessionRegistry) Count() int {
	return len(r.byName)
}

// Usernames returns the logged-in usernames, sorted.
func (r *SessionRegistry) Usernames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
