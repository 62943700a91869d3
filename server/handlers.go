package server

import (
	"time"

	"chatd/protocol"
)

const wireTimeFormat = "2006-01-02 15:04:05"

// dispatch runs one parsed command and reports whether the session asked to
// quit. A malformed or unknown command answers ERR and keeps the connection
// open; only QUIT (or an I/O failure seen by the read loop) ends it.
func (s *Server) dispatch(sess *Session, cmd *protocol.Command) bool {
	start := time.Now()
	verb := cmd.Verb
	quit := false

	switch cmd.Verb {
	case protocol.VerbAuth:
		s.handleAuth(sess, cmd)
	case protocol.VerbSend:
		s.handleSend(sess, cmd)
	case protocol.VerbGet:
		s.handleGet(sess, cmd)
	case protocol.VerbDelete:
		s.handleDelete(sess, cmd)
	case protocol.VerbUsers:
		s.handleUsers(sess)
	case protocol.VerbQuit:
		s.handleQuit(sess)
		quit = true
	default:
		verb = "unknown"
		sess.send(protocol.Err("Unknown command"))
	}

	CommandsTotal.WithLabelValues(verb).Inc()
	CommandDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	return quit
}

// requireAuth answers the auth-required error when the session has no
// username yet.
func (s *Server) requireAuth(sess *Session) (string, bool) {
	name := sess.Username()
	if name == "" {
		sess.send(protocol.Err("Authenticate first using AUTH <username>"))
		return "", false
	}
	return name, true
}

func (s *Server) handleAuth(sess *Session, cmd *protocol.Command) {
	if sess.Username() != "" {
		sess.send(protocol.Err("Already authenticated"))
		return
	}

	name := cmd.Arg
	if cmd.Tail != "" || !protocol.ValidUsername(name) {
		sess.send(protocol.Err("Invalid username"))
		return
	}

	if err := s.dir.Register(name, sess); err != nil {
		sess.send(protocol.Err("Username taken"))
		return
	}

	sess.setUsername(name)
	s.logger.Info("user authenticated", "username", name)
	sess.send(protocol.OK("Authenticated as " + name))
}

func (s *Server) handleSend(sess *Session, cmd *protocol.Command) {
	sender, ok := s.requireAuth(sess)
	if !ok {
		return
	}

	recipient := cmd.Arg
	text := cmd.Tail
	if recipient == "" || text == "" {
		sess.send(protocol.Err("Usage: SEND <user> <message>"))
		return
	}
	if recipient == sender {
		sess.send(protocol.Err("Cannot send to yourself"))
		return
	}

	s.deliver(sess, sender, recipient, text)
}

// deliver appends the message durably, then pushes it to the recipient's
// outbound queue when the recipient is online. The sender is acknowledged
// once the append is durable; an offline recipient reads the message later
// via GET.
func (s *Server) deliver(sess *Session, sender, recipient, text string) {
	msg, err := s.store.Append(sender, recipient, text)
	if err != nil {
		s.logger.Error("failed to persist message", "sender", sender, "recipient", recipient, "error", err)
		sess.send(protocol.Err("Failed to store message"))
		return
	}

	if target, online := s.dir.Lookup(recipient); online {
		if target.Enqueue(protocol.PushMessage(msg.Sender, msg.Text)) {
			PushesDelivered.Inc()
		} else {
			// The recipient stopped draining its socket. The message is
			// already durable, so drop the push and cut the connection.
			PushesDropped.Inc()
			s.logger.Warn("recipient queue full, dropping connection", "recipient", recipient)
			target.abort()
		}
	}

	sess.send(protocol.OK("Message queued"))
}

func (s *Server) handleGet(sess *Session, cmd *protocol.Command) {
	self, ok := s.requireAuth(sess)
	if !ok {
		return
	}

	other := cmd.Arg
	if other == "" || cmd.Tail != "" {
		sess.send(protocol.Err("Usage: GET <user>"))
		return
	}

	messages, err := s.store.Conversation(self, other)
	if err != nil {
		s.logger.Error("failed to query history", "user", self, "other", other, "error", err)
		sess.send(protocol.Err("Failed to query history"))
		return
	}

	if len(messages) == 0 {
		sess.send(protocol.NoMessages(other))
		return
	}

	for _, m := range messages {
		sess.send(protocol.HistoryLine(m.Timestamp.Format(wireTimeFormat), m.Sender, m.Text))
	}
	sess.send(protocol.HistoryEnd)
}

func (s *Server) handleDelete(sess *Session, cmd *protocol.Command) {
	self, ok := s.requireAuth(sess)
	if !ok {
		return
	}

	other := cmd.Arg
	if other == "" || cmd.Tail != "" {
		sess.send(protocol.Err("Usage: DELETE <user>"))
		return
	}

	if err := s.store.DeleteConversation(self, other); err != nil {
		s.logger.Error("failed to delete history", "user", self, "other", other, "error", err)
		sess.send(protocol.Err("Failed to delete history"))
		return
	}

	sess.send(protocol.OK("Deleted history with " + other))
}

func (s *Server) handleUsers(sess *Session) {
	if _, ok := s.requireAuth(sess); !ok {
		return
	}

	names := s.dir.Snapshot()
	sess.send(protocol.UsersBegin)
	for _, name := range names {
		sess.send(protocol.UserLine(name))
	}
	sess.send(protocol.UsersEnd)
}

func (s *Server) handleQuit(sess *Session) {
	sess.send(protocol.Bye)
}
