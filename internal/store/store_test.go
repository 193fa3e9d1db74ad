package store

import (
	"testing"
	"time"

	"github.com/letterpet/client-go/internal/domain"
)

func msg(chatID, username, text string, ts int64) domain.Message {
	return domain.Message{
		Text:      text,
		Timestamp: time.UnixMilli(ts),
		Username:  username,
		ChatID:    chatID,
	}
}

func TestPrependMessageKeepsMostRecentFirstPerChat(t *testing.T) {
	t.Parallel()

	s := New()
	// Arrival order interleaves two chats.
	s.PrependMessage(msg("c1", "bob", "first", 1))
	s.PrependMessage(msg("c2", "eve", "other chat", 2))
	s.PrependMessage(msg("c1", "bob", "second", 3))
	s.PrependMessage(msg("c1", "bob", "third", 4))

	got := s.Snapshot().MessagesFor("c1")
	want := []string{"third", "second", "first"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages for c1, got %d", len(want), len(got))
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Errorf("position %d: expected %q, got %q", i, text, got[i].Text)
		}
	}
}

func TestSnapshotIsImmutableUnderLaterMutations(t *testing.T) {
	t.Parallel()

	s := New()
	s.AppendChat(domain.Chat{ID: "c1", Name: "General"})
	s.PrependMessage(msg("c1", "bob", "hello", 1))
	before := s.Snapshot()

	s.PrependMessage(msg("c1", "bob", "later", 2))
	s.RemoveChat("c1")

	if len(before.Messages) != 1 || before.Messages[0].Text != "hello" {
		t.Errorf("old snapshot messages changed: %+v", before.Messages)
	}
	if len(before.Chats) != 1 || before.Chats[0].ID != "c1" {
		t.Errorf("old snapshot chats changed: %+v", before.Chats)
	}
}

func TestRemoveMemberOnlyTouchesFetchedLists(t *testing.T) {
	t.Parallel()

	s := New()
	s.AppendChat(domain.Chat{ID: "c1", Name: "General"})

	// Member list never fetched: removal of another identity is a no-op
	// on the cache and leaves the chat alone.
	s.RemoveMember("c1", "eve", false)
	snap := s.Snapshot()
	if snap.HasMembers("c1") {
		t.Error("removal must not create a member cache entry")
	}
	if len(snap.Chats) != 1 {
		t.Errorf("chat list changed: %+v", snap.Chats)
	}
}

func TestRemoveLocalIdentityDropsChat(t *testing.T) {
	t.Parallel()

	s := New()
	s.AppendChat(domain.Chat{ID: "c1", Name: "General"})
	s.AppendChat(domain.Chat{ID: "c2", Name: "Random"})
	s.SetMembers("c1", []string{"alice", "bob"})

	s.RemoveMember("c1", "alice", true)

	snap := s.Snapshot()
	if len(snap.Chats) != 1 || snap.Chats[0].ID != "c2" {
		t.Errorf("expected only c2 to remain, got %+v", snap.Chats)
	}
	members := snap.Members["c1"]
	if len(members) != 1 || members[0] != "bob" {
		t.Errorf("expected [bob], got %v", members)
	}
}

func TestAddMemberRequiresFetchedList(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddMember("c1", "eve")
	if s.Snapshot().HasMembers("c1") {
		t.Error("AddMember must not populate an unfetched member list")
	}

	s.SetMembers("c1", []string{"alice"})
	s.AddMember("c1", "eve")
	members := s.Snapshot().Members["c1"]
	if len(members) != 2 || members[1] != "eve" {
		t.Errorf("expected [alice eve], got %v", members)
	}
}

func TestChangesCoalesceAndSignal(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetConnected(true)
	s.SetLoading(true)

	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
	snap := s.Snapshot()
	if !snap.Connected || !snap.Loading {
		t.Errorf("notification must observe the latest snapshot: %+v", snap)
	}
}

func TestReplaceAllInstallsFreshProjection(t *testing.T) {
	t.Parallel()

	s := New()
	s.PrependMessage(msg("c1", "bob", "stale", 1))
	s.ReplaceAll(
		[]domain.Chat{{ID: "c1", Name: "General", IsGroup: true, CreatedBy: "bob"}},
		[]domain.Message{msg("c1", "bob", "fresh", 2)},
	)

	snap := s.Snapshot()
	if len(snap.Chats) != 1 || snap.Chats[0].Name != "General" {
		t.Errorf("unexpected chats: %+v", snap.Chats)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "fresh" {
		t.Errorf("unexpected messages: %+v", snap.Messages)
	}
}
