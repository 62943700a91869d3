package server

import (
	"bufio"
	"net"
	"sync"
	"time"
)

const outboundQueueSize = 256

// Session is the server-side state of one client connection.
//
// Every line written to the peer, whether a response to the peer's own
// command or a message pushed by another session's SEND, goes through the
// outbound queue and is written by the single writer goroutine. That keeps
// per-connection output FIFO and stops a push from landing inside a
// partially written response.
type Session struct {
	conn net.Conn

	mu       sync.RWMutex
	username string

	out       chan string
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn net.Conn) *Session {
	return &Session{
		conn:    conn,
		out:     make(chan string, outboundQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// send queues one line for the peer, blocking until there is room. Used for
// the session's own responses; blocking only stalls this session's
// dispatcher. Returns false once the session is closing or its writer died.
func (s *Session) send(line string) bool {
	select {
	case <-s.closing:
		return false
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- line:
		return true
	case <-s.closing:
		return false
	case <-s.done:
		return false
	}
}

// Enqueue queues one line without ever blocking the caller. Used for pushes
// from other sessions; a full queue means the peer is not draining, and the
// caller decides whether to tear the session down.
func (s *Session) Enqueue(line string) bool {
	select {
	case <-s.closing:
		return false
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// Close stops accepting new outbound lines and lets the writer drain what
// is already queued before it closes the connection. Safe to call from any
// goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

// abort closes the connection immediately, without draining the queue.
func (s *Session) abort() {
	s.Close()
	s.conn.Close()
}

// startWriter launches the single goroutine that owns socket writes. It
// drains the queue in FIFO order, applies the write deadline per line, and
// closes the connection when it finishes (which also unblocks the reader).
func (s *Session) startWriter(writeTimeout time.Duration) {
	go func() {
		defer close(s.done)
		defer s.conn.Close()

		w := bufio.NewWriter(s.conn)
		write := func(line string) bool {
			if writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if _, err := w.WriteString(line + "\n"); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		for {
			select {
			case line := <-s.out:
				if !write(line) {
					return
				}
			case <-s.closing:
				// Flush whatever is already queued, then stop.
				for {
					select {
					case line := <-s.out:
						if !write(line) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()
}
