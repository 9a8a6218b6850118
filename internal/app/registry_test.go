package app

import (
	"testing"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

func TestRegisterSupersedes(t *testing.T) {
	r := NewRegistry()
	id := domain.ParticipantID("alice")
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	farewell := core.Frame(`{"type":"superseded"}`)

	r.Register(id, c1, nil)
	r.Register(id, c2, farewell)

	if !c1.isClosed() {
		t.Error("superseded connection not closed")
	}
	if c1.sent() != 1 {
		t.Errorf("superseded connection got %d frames, want the farewell", c1.sent())
	}
	if _, ok := r.IdentityOf(c1); ok {
		t.Error("superseded connection still resolves to an identity")
	}
	got, ok := r.Lookup(id)
	if !ok || got != c2 {
		t.Error("identity does not resolve to the replacement connection")
	}
}

func TestDropOnlyCurrentConnection(t *testing.T) {
	r := NewRegistry()
	id := domain.ParticipantID("alice")
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	r.Register(id, c1, nil)
	r.Register(id, c2, nil)
	r.SetRoom(id, "ROOM01")

	// Teardown of the stale connection must not unregister the replacement.
	if r.Drop(id, c1) {
		t.Error("stale connection dropped the identity")
	}
	if _, ok := r.Lookup(id); !ok {
		t.Fatal("identity lost after stale drop")
	}
	if _, ok := r.RoomOf(id); !ok {
		t.Error("room membership lost after stale drop")
	}

	if !r.Drop(id, c2) {
		t.Error("current connection failed to drop")
	}
	if _, ok := r.Lookup(id); ok {
		t.Error("identity still registered after drop")
	}
	if _, ok := r.RoomOf(id); ok {
		t.Error("room membership survived drop")
	}
	// Idempotent.
	if r.Drop(id, c2) {
		t.Error("second drop reported a removal")
	}
}

func TestSetRoomRequiresConnection(t *testing.T) {
	r := NewRegistry()
	r.SetRoom("ghost", "ROOM01")
	if _, ok := r.RoomOf("ghost"); ok {
		t.Error("room recorded for an unregistered identity")
	}
}

func TestBroadcastBestEffort(t *testing.T) {
	r := NewRegistry()
	roomID := domain.RoomID("ROOM01")
	host := &fakeConn{fail: true}
	guest := &fakeConn{}

	r.Register("host", host, nil)
	r.Register("guest", guest, nil)
	r.SetRoom("host", roomID)
	r.SetRoom("guest", roomID)
	r.Register("other", &fakeConn{}, nil)
	r.SetRoom("other", "ROOM02")

	r.Broadcast(roomID, core.Frame(`{"type":"tick"}`))

	if guest.sent() != 1 {
		t.Errorf("healthy member got %d frames, want 1", guest.sent())
	}
	if host.sent() != 0 {
		t.Error("failing member should not accumulate frames")
	}
	other, _ := r.Lookup("other")
	if other.(*fakeConn).sent() != 0 {
		t.Error("member of another room received the broadcast")
	}
}
