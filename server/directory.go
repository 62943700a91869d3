package server

import (
	"errors"
	"sync"
)

var ErrNameTaken = errors.New("username taken")

// Directory is the process-wide map of online usernames to their session.
// A name present here always belongs to an open, authenticated connection.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[string]*Session),
	}
}

// Register claims name for sess. Names are case-sensitive and unique.
func (d *Directory) Register(name string, sess *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.sessions[name]; taken {
		return ErrNameTaken
	}
	d.sessions[name] = sess
	return nil
}

// Unregister removes name only while it still maps to sess, so a slow
// teardown cannot evict a fresh session that re-claimed the same name.
func (d *Directory) Unregister(name string, sess *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.sessions[name]; ok && current == sess {
		delete(d.sessions, name)
	}
}

func (d *Directory) Lookup(name string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sess, ok := d.sessions[name]
	return sess, ok
}

// Snapshot returns the names online at one consistent instant.
func (d *Directory) Snapshot() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sessions))
	for name := range d.sessions {
		names = append(names, name)
	}
	return names
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}
