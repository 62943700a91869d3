package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestAppendAndConversationOrder(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.Append("alice", "bob", "hello")
	require.NoError(t, err)
	second, err := s.Append("bob", "alice", "hi back")
	require.NoError(t, err)
	third, err := s.Append("alice", "bob", "how are you")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(3), third.Seq)

	// Both parties see the same ordered log, whichever way they ask.
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		msgs, err := s.Conversation(pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "hello", msgs[0].Text)
		assert.Equal(t, "hi back", msgs[1].Text)
		assert.Equal(t, "how are you", msgs[2].Text)
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Append("alice", "bob", "for bob")
	require.NoError(t, err)
	msg, err := s.Append("alice", "carol", "for carol")
	require.NoError(t, err)

	// Sequences count per conversation, not globally.
	assert.Equal(t, int64(1), msg.Seq)

	msgs, err := s.Conversation("alice", "carol")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for carol", msgs[0].Text)
}

func TestConversationEmptyIsNotAnError(t *testing.T) {
	s, _ := newTestStore(t)

	msgs, err := s.Conversation("alice", "stranger")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteConversation(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Append("alice", "bob", "doomed")
	require.NoError(t, err)
	_, err = s.Append("alice", "carol", "kept")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation("bob", "alice"))

	msgs, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	kept, err := s.Conversation("alice", "carol")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSequenceRestartsAfterDelete(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Append("alice", "bob", "one")
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation("alice", "bob"))

	msg, err := s.Append("alice", "bob", "two")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
}

func TestReopenKeepsMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Append("alice", "bob", "durable")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.Conversation("alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "durable", msgs[0].Text)

	// Sequences keep counting from the stored log.
	msg, err := reopened.Append("bob", "alice", "after restart")
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Seq)
}

func TestConcurrentAppendsSamePair(t *testing.T) {
	s, _ := newTestStore(t)

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := s.Append("alice", "bob", fmt.Sprintf("msg %d-%d", i, j))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := s.Conversation("alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)

	// Sequences are dense and strictly increasing despite concurrent writers.
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}
