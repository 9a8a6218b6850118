package app

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

const (
	roomIDLen      = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Store owns every Room record and its lifecycle transitions. The table is
// guarded by the store mutex; each room record carries its own mutex so
// different rooms are processed fully in parallel while mutation of a
// single room stays serialized.
type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomRecord
	sched core.Scheduler
	grace time.Duration

	// Defaults seed the settings of every new room.
	Defaults domain.Settings

	// NotifyDeleted fires after a grace deadline expires and the room is
	// destroyed. Wired to the signaling adapter so the remaining guest
	// learns the room is gone.
	NotifyDeleted func(roomID domain.RoomID, guestID domain.ParticipantID)
}

type roomRecord struct {
	mu      sync.Mutex
	deleted bool

	room     *domain.Room
	slots    map[int]*domain.PhotoSlot
	segments map[int]*domain.VideoSegment
	// segmentsDone latches once the uploaded count first reaches the
	// required total, so the all-segments event fires exactly once.
	segmentsDone bool

	sessions []*domain.Session
	current  *domain.Session

	deletion      core.Task
	mergeInFlight bool
}

func NewStore(sched core.Scheduler, grace time.Duration) *Store {
	return &Store{
		rooms:    make(map[domain.RoomID]*roomRecord),
		sched:    sched,
		grace:    grace,
		Defaults: domain.DefaultSettings(),
	}
}

// RoomInfo is a read-only room view for replies and the REST API.
type RoomInfo struct {
	ID              domain.RoomID        `json:"id"`
	Mode            domain.CaptureMode   `json:"mode"`
	HostID          domain.ParticipantID `json:"hostId"`
	GuestID         domain.ParticipantID `json:"guestId,omitempty"`
	PendingDeletion bool                 `json:"pendingDeletion,omitempty"`
	Settings        domain.Settings      `json:"settings"`
	SlotsComplete   int                  `json:"slotsComplete"`
	SegmentCount    int                  `json:"segmentCount"`
	SessionCount    int                  `json:"sessionCount"`
	CurrentSession  *domain.Session      `json:"currentSession,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

func (s *Store) get(roomID domain.RoomID) (*roomRecord, error) {
	s.mu.RLock()
	rec, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return rec, nil
}

// withRoom runs fn with the room record locked. Expected failures come back
// as errors, never panics.
func (s *Store) withRoom(roomID domain.RoomID, fn func(rec *roomRecord) error) error {
	rec, err := s.get(roomID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return domain.ErrRoomNotFound
	}
	rec.room.LastActiveAt = s.sched.Now()
	return fn(rec)
}

func (s *Store) newRoomID() (domain.RoomID, error) {
	// Largest multiple of the alphabet size below 256; bytes at or above it
	// are redrawn so every character is a uniform pick.
	const limit = byte(252)
	id := make([]byte, roomIDLen)
	var b [1]byte
	for attempt := 0; attempt < 100; attempt++ {
		for i := 0; i < roomIDLen; {
			if _, err := rand.Read(b[:]); err != nil {
				return "", fmt.Errorf("room id entropy: %w", err)
			}
			if b[0] >= limit {
				continue
			}
			id[i] = roomIDAlphabet[int(b[0])%len(roomIDAlphabet)]
			i++
		}
		rid := domain.RoomID(id)
		if _, taken := s.rooms[rid]; !taken {
			return rid, nil
		}
	}
	return "", fmt.Errorf("room id space exhausted")
}

// CreateRoom makes a new room owned by hostID. The id is checked against
// the live table and regenerated on collision.
func (s *Store) CreateRoom(hostID domain.ParticipantID, mode domain.CaptureMode, policy domain.DeletionPolicy) (RoomInfo, error) {
	if !mode.Valid() {
		return RoomInfo{}, fmt.Errorf("%w: capture mode %q", domain.ErrInvalidRole, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.newRoomID()
	if err != nil {
		return RoomInfo{}, err
	}
	now := s.sched.Now()
	rec := &roomRecord{
		room: &domain.Room{
			ID:           id,
			HostID:       hostID,
			Mode:         mode,
			Policy:       policy,
			State:        domain.StateActive,
			Settings:     s.Defaults,
			CreatedAt:    now,
			LastActiveAt: now,
		},
		slots:    make(map[int]*domain.PhotoSlot),
		segments: make(map[int]*domain.VideoSegment),
	}
	s.rooms[id] = rec
	log.Info().Str("module", "app.store").Str("room", string(id)).Str("host", string(hostID)).Str("mode", string(mode)).Msg("room created")
	return snapshot(rec), nil
}

// RejoinHost re-attaches the host to an existing room, cancelling a pending
// deletion deadline if one is running. Guest and session state are left
// intact.
func (s *Store) RejoinHost(roomID domain.RoomID, hostID domain.ParticipantID) (RoomInfo, error) {
	var info RoomInfo
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.room.HostID != hostID {
			return domain.ErrNotHost
		}
		if rec.room.State == domain.StatePendingDeletion {
			if rec.deletion != nil {
				rec.deletion.Cancel()
				rec.deletion = nil
			}
			rec.room.State = domain.StateActive
			log.Info().Str("module", "app.store").Str("room", string(roomID)).Msg("pending deletion cancelled by host rejoin")
		}
		info = snapshot(rec)
		return nil
	})
	return info, err
}

// HostExit reports what happened to the room after the host went away.
type HostExit struct {
	Deleted      bool
	PendingUntil time.Time
	GuestID      domain.ParticipantID
}

// HostGone applies the room's deletion policy. An explicit leave always
// destroys the room; an abrupt disconnect under the grace policy only
// schedules destruction behind a cancellable deadline.
func (s *Store) HostGone(roomID domain.RoomID, hostID domain.ParticipantID, abrupt bool) (HostExit, error) {
	var exit HostExit
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.room.HostID != hostID {
			return domain.ErrNotHost
		}
		exit.GuestID = rec.room.GuestID
		if abrupt && rec.room.Policy == domain.DeleteAfterGrace {
			if rec.room.State == domain.StatePendingDeletion {
				return nil
			}
			rec.room.State = domain.StatePendingDeletion
			exit.PendingUntil = s.sched.Now().Add(s.grace)
			rec.deletion = s.sched.After(s.grace, func() { s.expire(roomID) })
			log.Info().Str("module", "app.store").Str("room", string(roomID)).Time("deadline", exit.PendingUntil).Msg("deletion scheduled")
			return nil
		}
		exit.Deleted = true
		s.destroyLocked(rec)
		return nil
	})
	return exit, err
}

// destroyLocked removes the room from the table. Caller holds rec.mu; the
// table lock is taken after the record lock, never the other way around.
func (s *Store) destroyLocked(rec *roomRecord) {
	rec.deleted = true
	rec.room.State = domain.StateDeleted
	if rec.deletion != nil {
		rec.deletion.Cancel()
		rec.deletion = nil
	}
	s.mu.Lock()
	delete(s.rooms, rec.room.ID)
	s.mu.Unlock()
	log.Info().Str("module", "app.store").Str("room", string(rec.room.ID)).Msg("room destroyed")
}

func (s *Store) expire(roomID domain.RoomID) {
	rec, err := s.get(roomID)
	if err != nil {
		return
	}
	rec.mu.Lock()
	if rec.deleted || rec.room.State != domain.StatePendingDeletion {
		rec.mu.Unlock()
		return
	}
	guest := rec.room.GuestID
	s.destroyLocked(rec)
	rec.mu.Unlock()
	log.Info().Str("module", "app.store").Str("room", string(roomID)).Msg("grace deadline expired")
	if s.NotifyDeleted != nil {
		s.NotifyDeleted(roomID, guest)
	}
}

func (s *Store) Exists(roomID domain.RoomID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Store) Info(roomID domain.RoomID) (RoomInfo, error) {
	var info RoomInfo
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		info = snapshot(rec)
		return nil
	})
	return info, err
}

// RoleOf resolves which role the identity currently plays in the room.
func (s *Store) RoleOf(roomID domain.RoomID, id domain.ParticipantID) (domain.Role, error) {
	var role domain.Role
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		switch id {
		case rec.room.HostID:
			role = domain.RoleHost
		case rec.room.GuestID:
			role = domain.RoleGuest
		default:
			return domain.ErrNotMember
		}
		return nil
	})
	return role, err
}

func snapshot(rec *roomRecord) RoomInfo {
	info := RoomInfo{
		ID:              rec.room.ID,
		Mode:            rec.room.Mode,
		HostID:          rec.room.HostID,
		GuestID:         rec.room.GuestID,
		PendingDeletion: rec.room.State == domain.StatePendingDeletion,
		Settings:        rec.room.Settings,
		SegmentCount:    len(rec.segments),
		SessionCount:    len(rec.sessions),
		CreatedAt:       rec.room.CreatedAt,
	}
	for _, slot := range rec.slots {
		if slot.Complete() {
			info.SlotsComplete++
		}
	}
	if rec.current != nil {
		cur := *rec.current
		info.CurrentSession = &cur
	}
	return info
}

// JoinGuest attaches a guest to the room. In booth mode every tenure opens
// a fresh in_progress session. Rejected while another guest is attached; a
// join by the already-attached guest is a reconnect, not a conflict.
func (s *Store) JoinGuest(roomID domain.RoomID, guestID domain.ParticipantID) (RoomInfo, error) {
	var info RoomInfo
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if guestID == rec.room.HostID {
			return domain.ErrIdentityMismatch
		}
		if rec.room.GuestID != "" && rec.room.GuestID != guestID {
			return domain.ErrGuestSlotOccupied
		}
		if rec.room.GuestID == "" {
			rec.room.GuestID = guestID
			if rec.room.Mode == domain.ModeBooth {
				sess := &domain.Session{
					ID:        uuid.NewString(),
					GuestID:   guestID,
					Status:    domain.SessionInProgress,
					CreatedAt: s.sched.Now(),
				}
				rec.sessions = append(rec.sessions, sess)
				rec.current = sess
			}
		}
		info = snapshot(rec)
		return nil
	})
	return info, err
}

// LeaveGuest detaches the guest. The room and its settings persist; in
// booth mode an in_progress session is closed as completed.
func (s *Store) LeaveGuest(roomID domain.RoomID, guestID domain.ParticipantID) error {
	return s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.room.GuestID != guestID {
			return domain.ErrNotGuest
		}
		rec.room.GuestID = ""
		if rec.current != nil && rec.current.Status == domain.SessionInProgress {
			rec.current.Status = domain.SessionCompleted
			rec.current.CompletedAt = s.sched.Now()
		}
		rec.current = nil
		return nil
	})
}

// Sessions returns copies of the room's session history, oldest first.
func (s *Store) Sessions(roomID domain.RoomID) ([]domain.Session, error) {
	var out []domain.Session
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		out = make([]domain.Session, 0, len(rec.sessions))
		for _, sess := range rec.sessions {
			out = append(out, *sess)
		}
		return nil
	})
	return out, err
}

func (rec *roomRecord) verifyRole(id domain.ParticipantID, role domain.Role) error {
	switch role {
	case domain.RoleHost:
		if rec.room.HostID != id {
			return domain.ErrNotHost
		}
	case domain.RoleGuest:
		if rec.room.GuestID != id {
			return domain.ErrNotGuest
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	return nil
}

func (rec *roomRecord) verifyMember(id domain.ParticipantID) error {
	if id != rec.room.HostID && id != rec.room.GuestID {
		return domain.ErrNotMember
	}
	return nil
}

// SetSlotPhoto records a per-role asset ref on a numbered slot (pair mode).
func (s *Store) SetSlotPhoto(roomID domain.RoomID, id domain.ParticipantID, role domain.Role, slot int, ref string) (domain.PhotoSlot, error) {
	var out domain.PhotoSlot
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyRole(id, role); err != nil {
			return err
		}
		if slot < 1 || slot > rec.room.Settings.TotalSlots {
			return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, slot)
		}
		ps, ok := rec.slots[slot]
		if !ok {
			ps = &domain.PhotoSlot{Number: slot}
			rec.slots[slot] = ps
		}
		if role == domain.RoleHost {
			ps.HostPhoto = ref
		} else {
			ps.GuestPhoto = ref
		}
		ps.UpdatedAt = s.sched.Now()
		out = *ps
		return nil
	})
	return out, err
}

// TryBeginSlotMerge arms the merge-in-flight guard for one slot. It reports
// ok only when both per-role assets are present, no merged ref exists yet,
// and no merge is already in flight for this room; a concurrent duplicate
// observation therefore dispatches nothing.
func (s *Store) TryBeginSlotMerge(roomID domain.RoomID, slot int) (hostRef, guestRef string, ok bool, err error) {
	err = s.withRoom(roomID, func(rec *roomRecord) error {
		ps, found := rec.slots[slot]
		if !found || !ps.ReadyForMerge() || rec.mergeInFlight {
			return nil
		}
		rec.mergeInFlight = true
		hostRef, guestRef, ok = ps.HostPhoto, ps.GuestPhoto, true
		return nil
	})
	return hostRef, guestRef, ok, err
}

// TryBeginBatch arms the guard once every configured slot has both roles
// present, returning the slots in capture order.
func (s *Store) TryBeginBatch(roomID domain.RoomID) (slots []domain.PhotoSlot, ok bool, err error) {
	err = s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.mergeInFlight {
			return nil
		}
		total := rec.room.Settings.TotalSlots
		out := make([]domain.PhotoSlot, 0, total)
		for n := 1; n <= total; n++ {
			ps, found := rec.slots[n]
			if !found || !ps.Complete() {
				return nil
			}
			out = append(out, *ps)
		}
		rec.mergeInFlight = true
		slots, ok = out, true
		return nil
	})
	return slots, ok, err
}

// BeginMerge arms the room-level guard unconditionally of slot state; used
// by segment composition.
func (s *Store) BeginMerge(roomID domain.RoomID) (ok bool, err error) {
	err = s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.mergeInFlight {
			return nil
		}
		rec.mergeInFlight = true
		ok = true
		return nil
	})
	return ok, err
}

// EndMerge clears the merge-in-flight guard. Called on completion, success
// or failure, so the next qualifying upload can re-arm the trigger.
func (s *Store) EndMerge(roomID domain.RoomID) {
	_ = s.withRoom(roomID, func(rec *roomRecord) error {
		rec.mergeInFlight = false
		return nil
	})
}

func (s *Store) SetSlotMerged(roomID domain.RoomID, slot int, ref string) error {
	return s.withRoom(roomID, func(rec *roomRecord) error {
		ps, ok := rec.slots[slot]
		if !ok {
			return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, slot)
		}
		ps.Merged = ref
		ps.UpdatedAt = s.sched.Now()
		return nil
	})
}

// SetSessionPhoto records a per-role photo on the current booth session.
func (s *Store) SetSessionPhoto(roomID domain.RoomID, id domain.ParticipantID, role domain.Role, ref string) error {
	return s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyRole(id, role); err != nil {
			return err
		}
		if rec.current == nil {
			return domain.ErrSessionNotFound
		}
		if role == domain.RoleHost {
			rec.current.HostPhoto = ref
		} else {
			rec.current.GuestPhoto = ref
		}
		return nil
	})
}

// TryBeginSessionMerge arms the guard for the current session.
func (s *Store) TryBeginSessionMerge(roomID domain.RoomID) (hostRef, guestRef string, ok bool, err error) {
	err = s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.current == nil || !rec.current.ReadyForMerge() || rec.mergeInFlight {
			return nil
		}
		rec.mergeInFlight = true
		hostRef, guestRef, ok = rec.current.HostPhoto, rec.current.GuestPhoto, true
		return nil
	})
	return hostRef, guestRef, ok, err
}

func (s *Store) SetSessionMerged(roomID domain.RoomID, ref string) error {
	return s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.current == nil {
			return domain.ErrSessionNotFound
		}
		rec.current.MergedPhoto = ref
		return nil
	})
}

// CompleteSession marks the current session completed with its final
// artifact and returns a copy.
func (s *Store) CompleteSession(roomID domain.RoomID, resultRef string) (domain.Session, error) {
	var out domain.Session
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if rec.current == nil {
			return domain.ErrSessionNotFound
		}
		if resultRef != "" {
			rec.current.Result = resultRef
		}
		rec.current.Status = domain.SessionCompleted
		rec.current.CompletedAt = s.sched.Now()
		out = *rec.current
		return nil
	})
	return out, err
}

// AddSegment records an uploaded video segment for a slot. done is true
// exactly when the upload brings the distinct-slot count from required-1 to
// required, never on later uploads.
func (s *Store) AddSegment(roomID domain.RoomID, id domain.ParticipantID, slot int, ref string, size int64) (count, required int, done bool, err error) {
	err = s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyMember(id); err != nil {
			return err
		}
		if slot < 1 || slot > rec.room.Settings.TotalSlots {
			return fmt.Errorf("%w: %d", domain.ErrInvalidSlot, slot)
		}
		rec.segments[slot] = &domain.VideoSegment{
			Slot:       slot,
			UploaderID: id,
			Ref:        ref,
			Size:       size,
			UploadedAt: s.sched.Now(),
		}
		count = len(rec.segments)
		required = rec.room.Settings.TotalSlots
		if !rec.segmentsDone && count >= required {
			rec.segmentsDone = true
			done = true
		}
		return nil
	})
	return count, required, done, err
}

// SegmentRefs resolves an ordered slot selection to storage refs. Missing
// slots are reported together in one structured error.
func (s *Store) SegmentRefs(roomID domain.RoomID, slots []int) ([]string, error) {
	var refs []string
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		var missing []int
		out := make([]string, 0, len(slots))
		for _, n := range slots {
			seg, ok := rec.segments[n]
			if !ok {
				missing = append(missing, n)
				continue
			}
			out = append(out, seg.Ref)
		}
		if len(missing) > 0 {
			return &domain.MissingSegmentsError{Missing: missing}
		}
		refs = out
		return nil
	})
	return refs, err
}

// UpdateSettings applies a durable settings patch. Settings live on the
// room and survive guest turnover.
func (s *Store) UpdateSettings(roomID domain.RoomID, id domain.ParticipantID, patch domain.SettingsPatch) (domain.Settings, error) {
	var out domain.Settings
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyMember(id); err != nil {
			return err
		}
		rec.room.Settings.Apply(patch)
		out = rec.room.Settings
		return nil
	})
	return out, err
}

// SelectFrame persists the chosen layout and aligns the slot total with it.
func (s *Store) SelectFrame(roomID domain.RoomID, id domain.ParticipantID, layoutID string, slotCount int) (domain.Settings, error) {
	var out domain.Settings
	err := s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyMember(id); err != nil {
			return err
		}
		rec.room.Settings.LayoutID = layoutID
		rec.room.Settings.TotalSlots = slotCount
		out = rec.room.Settings
		return nil
	})
	return out, err
}

// ResetRound clears the working capture state for a fresh round: photo
// slots, segments and the all-segments latch. Host only. In booth mode the
// current session's assets are cleared as well, but the session record and
// the room settings are untouched.
func (s *Store) ResetRound(roomID domain.RoomID, id domain.ParticipantID) error {
	return s.withRoom(roomID, func(rec *roomRecord) error {
		if err := rec.verifyRole(id, domain.RoleHost); err != nil {
			return err
		}
		rec.slots = make(map[int]*domain.PhotoSlot)
		rec.segments = make(map[int]*domain.VideoSegment)
		rec.segmentsDone = false
		if rec.current != nil && rec.current.Status == domain.SessionInProgress {
			rec.current.HostPhoto = ""
			rec.current.GuestPhoto = ""
			rec.current.MergedPhoto = ""
		}
		return nil
	})
}
