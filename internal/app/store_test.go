package app

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/KwakOri/vshot-server/internal/domain"
)

const testGrace = 30 * time.Second

func newTestStore() (*Store, *fakeClock) {
	clock := newFakeClock()
	return NewStore(clock, testGrace), clock
}

func mustCreate(t *testing.T, s *Store, host domain.ParticipantID, mode domain.CaptureMode, policy domain.DeletionPolicy) domain.RoomID {
	t.Helper()
	info, err := s.CreateRoom(host, mode, policy)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return info.ID
}

func TestCreateRoomIDFormat(t *testing.T) {
	s, _ := newTestStore()
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	seen := make(map[domain.RoomID]bool)
	for i := 0; i < 50; i++ {
		id := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
		if !pattern.MatchString(string(id)) {
			t.Fatalf("room id %q does not match format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate room id %q", id)
		}
		seen[id] = true
	}
}

func TestRoomIDCharactersUniform(t *testing.T) {
	s, _ := newTestStore()
	counts := make(map[byte]int)
	draws := 0
	for i := 0; i < 20000; i++ {
		id, err := s.newRoomID()
		if err != nil {
			t.Fatalf("newRoomID: %v", err)
		}
		for j := 0; j < len(id); j++ {
			counts[id[j]]++
			draws++
		}
	}
	// A byte taken modulo 36 without rejection overweights A through D by a
	// factor of 8/7, roughly +400 over the expected count at this sample
	// size. The bound is wide enough that a uniform draw never trips it.
	expected := draws / len(roomIDAlphabet)
	for i := 0; i < len(roomIDAlphabet); i++ {
		n := counts[roomIDAlphabet[i]]
		if n < expected-250 || n > expected+250 {
			t.Errorf("character %c drawn %d times, expected about %d", roomIDAlphabet[i], n, expected)
		}
	}
}

func TestJoinGuest(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)

	if _, err := s.JoinGuest(roomID, "host"); !errors.Is(err, domain.ErrIdentityMismatch) {
		t.Errorf("host joining as guest: got %v, want ErrIdentityMismatch", err)
	}
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatalf("first guest join: %v", err)
	}
	if _, err := s.JoinGuest(roomID, "bob"); !errors.Is(err, domain.ErrGuestSlotOccupied) {
		t.Errorf("second guest: got %v, want ErrGuestSlotOccupied", err)
	}
	// The attached guest joining again is a reconnect, not a conflict.
	info, err := s.JoinGuest(roomID, "alice")
	if err != nil {
		t.Fatalf("guest rejoin: %v", err)
	}
	if info.GuestID != "alice" {
		t.Errorf("guest after rejoin is %q", info.GuestID)
	}
	if _, err := s.JoinGuest("ZZZZZZ", "alice"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("unknown room: got %v, want ErrRoomNotFound", err)
	}
}

func TestHostRejoinCancelsPendingDeletion(t *testing.T) {
	s, clock := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)

	exit, err := s.HostGone(roomID, "host", true)
	if err != nil {
		t.Fatalf("HostGone: %v", err)
	}
	if exit.Deleted {
		t.Fatal("abrupt disconnect under grace policy destroyed the room")
	}
	if exit.PendingUntil != clock.Now().Add(testGrace) {
		t.Errorf("deadline %v, want %v", exit.PendingUntil, clock.Now().Add(testGrace))
	}

	info, err := s.Info(roomID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !info.PendingDeletion {
		t.Error("room not marked pending deletion")
	}

	if _, err := s.RejoinHost(roomID, "host"); err != nil {
		t.Fatalf("RejoinHost: %v", err)
	}
	clock.Advance(testGrace + time.Second)
	if !s.Exists(roomID) {
		t.Error("room destroyed despite the host rejoining in time")
	}
	info, _ = s.Info(roomID)
	if info.PendingDeletion {
		t.Error("room still pending deletion after rejoin")
	}
}

func TestGraceExpiryDestroysAndNotifies(t *testing.T) {
	s, clock := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	var notifiedRoom domain.RoomID
	var notifiedGuest domain.ParticipantID
	s.NotifyDeleted = func(r domain.RoomID, g domain.ParticipantID) {
		notifiedRoom, notifiedGuest = r, g
	}

	if _, err := s.HostGone(roomID, "host", true); err != nil {
		t.Fatal(err)
	}
	clock.Advance(testGrace - time.Second)
	if !s.Exists(roomID) {
		t.Fatal("room destroyed before the deadline")
	}
	clock.Advance(2 * time.Second)
	if s.Exists(roomID) {
		t.Fatal("room survived the deadline")
	}
	if _, err := s.Info(roomID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Info after expiry: got %v, want ErrRoomNotFound", err)
	}
	if notifiedRoom != roomID || notifiedGuest != "alice" {
		t.Errorf("notification (%q, %q), want (%q, %q)", notifiedRoom, notifiedGuest, roomID, "alice")
	}
}

func TestExplicitHostLeaveDestroysImmediately(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)

	exit, err := s.HostGone(roomID, "host", false)
	if err != nil {
		t.Fatal(err)
	}
	if !exit.Deleted {
		t.Error("explicit leave did not destroy the room")
	}
	if s.Exists(roomID) {
		t.Error("room still present after explicit leave")
	}
}

func TestHostGoneImmediatePolicy(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModeBooth, domain.DeleteImmediately)

	exit, err := s.HostGone(roomID, "host", true)
	if err != nil {
		t.Fatal(err)
	}
	if !exit.Deleted {
		t.Error("immediate policy did not destroy on abrupt disconnect")
	}
}

func TestHostGoneRejectsNonHost(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.HostGone(roomID, "mallory", true); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("got %v, want ErrNotHost", err)
	}
}

func TestBoothSessionRotation(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModeBooth, domain.DeleteImmediately)

	layout := "grid-2x2"
	if _, err := s.UpdateSettings(roomID, "host", domain.SettingsPatch{LayoutID: &layout}); err != nil {
		t.Fatal(err)
	}

	info, err := s.JoinGuest(roomID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if info.CurrentSession == nil {
		t.Fatal("booth join did not open a session")
	}
	if info.CurrentSession.Status != domain.SessionInProgress {
		t.Errorf("session status %q", info.CurrentSession.Status)
	}
	firstID := info.CurrentSession.ID

	if err := s.LeaveGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}
	info, err = s.JoinGuest(roomID, "bob")
	if err != nil {
		t.Fatalf("next guest join after turnover: %v", err)
	}
	if info.CurrentSession == nil || info.CurrentSession.ID == firstID {
		t.Fatal("second guest did not get a fresh session")
	}
	// Settings chosen before the turnover are room state, not guest state.
	if info.Settings.LayoutID != layout {
		t.Errorf("layout %q did not survive guest turnover", info.Settings.LayoutID)
	}

	sessions, err := s.Sessions(roomID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("session history has %d entries, want 2", len(sessions))
	}
	if sessions[0].Status != domain.SessionCompleted {
		t.Errorf("first session status %q, want completed", sessions[0].Status)
	}
	if sessions[1].GuestID != "bob" {
		t.Errorf("second session guest %q", sessions[1].GuestID)
	}
}

func TestLeaveGuestRejectsNonGuest(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if err := s.LeaveGuest(roomID, "alice"); !errors.Is(err, domain.ErrNotGuest) {
		t.Errorf("got %v, want ErrNotGuest", err)
	}
}

func TestSlotMergeGuard(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok, _ := s.TryBeginSlotMerge(roomID, 1); ok {
		t.Fatal("merge armed with no photos")
	}
	if _, err := s.SetSlotPhoto(roomID, "host", domain.RoleHost, 1, "h1"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok, _ := s.TryBeginSlotMerge(roomID, 1); ok {
		t.Fatal("merge armed with one photo")
	}
	if _, err := s.SetSlotPhoto(roomID, "alice", domain.RoleGuest, 1, "g1"); err != nil {
		t.Fatal(err)
	}

	hostRef, guestRef, ok, err := s.TryBeginSlotMerge(roomID, 1)
	if err != nil || !ok {
		t.Fatalf("merge did not arm: ok=%v err=%v", ok, err)
	}
	if hostRef != "h1" || guestRef != "g1" {
		t.Errorf("refs (%q, %q)", hostRef, guestRef)
	}
	// Guard holds until EndMerge.
	if _, _, ok, _ := s.TryBeginSlotMerge(roomID, 1); ok {
		t.Fatal("second merge armed while one is in flight")
	}
	s.EndMerge(roomID)
	if err := s.SetSlotMerged(roomID, 1, "m1"); err != nil {
		t.Fatal(err)
	}
	// A merged slot never re-arms.
	if _, _, ok, _ := s.TryBeginSlotMerge(roomID, 1); ok {
		t.Fatal("merged slot re-armed")
	}
}

func TestSetSlotPhotoValidation(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetSlotPhoto(roomID, "alice", domain.RoleHost, 1, "x"); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("guest claiming host role: got %v, want ErrNotHost", err)
	}
	if _, err := s.SetSlotPhoto(roomID, "host", domain.RoleHost, 0, "x"); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("slot 0: got %v, want ErrInvalidSlot", err)
	}
	if _, err := s.SetSlotPhoto(roomID, "host", domain.RoleHost, 5, "x"); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("slot beyond total: got %v, want ErrInvalidSlot", err)
	}
}

func TestSegmentLatch(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	for slot := 1; slot <= 3; slot++ {
		_, _, done, err := s.AddSegment(roomID, "host", slot, "seg", 100)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			t.Fatalf("done reported at %d of 4 segments", slot)
		}
	}
	count, required, done, err := s.AddSegment(roomID, "alice", 4, "seg", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !done || count != 4 || required != 4 {
		t.Fatalf("completing upload: count=%d required=%d done=%v", count, required, done)
	}
	// Replacing a segment after completion must not fire the latch again.
	if _, _, done, _ := s.AddSegment(roomID, "host", 4, "seg2", 100); done {
		t.Error("latch fired twice")
	}

	if _, _, _, err := s.AddSegment(roomID, "mallory", 1, "seg", 100); !errors.Is(err, domain.ErrNotMember) {
		t.Errorf("outsider upload: got %v, want ErrNotMember", err)
	}
}

func TestSegmentRefs(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)

	if _, _, _, err := s.AddSegment(roomID, "host", 1, "a", 10); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.AddSegment(roomID, "host", 3, "c", 10); err != nil {
		t.Fatal(err)
	}

	refs, err := s.SegmentRefs(roomID, []int{3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 || refs[0] != "c" || refs[1] != "a" {
		t.Errorf("refs %v, want selection order [c a]", refs)
	}

	_, err = s.SegmentRefs(roomID, []int{1, 2, 4})
	var missing *domain.MissingSegmentsError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want MissingSegmentsError", err)
	}
	if len(missing.Missing) != 2 || missing.Missing[0] != 2 || missing.Missing[1] != 4 {
		t.Errorf("missing %v, want [2 4]", missing.Missing)
	}
}

func TestResetRound(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	for slot := 1; slot <= 4; slot++ {
		if _, _, _, err := s.AddSegment(roomID, "host", slot, "seg", 10); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.SetSlotPhoto(roomID, "host", domain.RoleHost, 1, "h1"); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetRound(roomID, "alice"); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("guest reset: got %v, want ErrNotHost", err)
	}
	if err := s.ResetRound(roomID, "host"); err != nil {
		t.Fatal(err)
	}

	info, _ := s.Info(roomID)
	if info.SegmentCount != 0 || info.SlotsComplete != 0 {
		t.Errorf("state survived reset: segments=%d slots=%d", info.SegmentCount, info.SlotsComplete)
	}
	// The latch is re-armed: a fresh full set fires again.
	var done bool
	for slot := 1; slot <= 4; slot++ {
		_, _, d, err := s.AddSegment(roomID, "host", slot, "seg", 10)
		if err != nil {
			t.Fatal(err)
		}
		done = d
	}
	if !done {
		t.Error("latch did not re-arm after reset")
	}
	// Settings are untouched by a round reset.
	if info.Settings.LayoutID != "strip-4" {
		t.Errorf("settings changed by reset: %q", info.Settings.LayoutID)
	}
}

func TestRoleOf(t *testing.T) {
	s, _ := newTestStore()
	roomID := mustCreate(t, s, "host", domain.ModePair, domain.DeleteAfterGrace)
	if _, err := s.JoinGuest(roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	if role, _ := s.RoleOf(roomID, "host"); role != domain.RoleHost {
		t.Errorf("host role %q", role)
	}
	if role, _ := s.RoleOf(roomID, "alice"); role != domain.RoleGuest {
		t.Errorf("guest role %q", role)
	}
	if _, err := s.RoleOf(roomID, "mallory"); !errors.Is(err, domain.ErrNotMember) {
		t.Errorf("outsider: got %v, want ErrNotMember", err)
	}
}
