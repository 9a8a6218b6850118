package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

const tickInterval = time.Second

// Coordinator sequences capture rounds and arbitrates the merge trigger.
// It never mutates room state directly; every transition goes through the
// Store so the per-room serialization discipline holds.
type Coordinator struct {
	Store   *Store
	Sched   core.Scheduler
	Merger  core.Merger
	Layouts *layout.Catalog

	// Events is wired to the signaling adapter after construction.
	Events core.EventSink

	MergeTimeout time.Duration

	mu         sync.Mutex
	countdowns map[domain.RoomID]*countdown
}

type countdown struct {
	remaining int
	task      core.Task
}

func NewCoordinator(store *Store, sched core.Scheduler, merger core.Merger, layouts *layout.Catalog) *Coordinator {
	return &Coordinator{
		Store:        store,
		Sched:        sched,
		Merger:       merger,
		Layouts:      layouts,
		MergeTimeout: 30 * time.Second,
		countdowns:   make(map[domain.RoomID]*countdown),
	}
}

// StartCapture begins the server-driven countdown: a start broadcast, a
// descending tick per second, then capture-now. One active countdown per
// room.
func (c *Coordinator) StartCapture(roomID domain.RoomID, id domain.ParticipantID) error {
	if _, err := c.Store.RoleOf(roomID, id); err != nil {
		return err
	}
	info, err := c.Store.Info(roomID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, active := c.countdowns[roomID]; active {
		c.mu.Unlock()
		return domain.ErrCountdownActive
	}
	cd := &countdown{remaining: info.Settings.Timing.CountdownSeconds}
	c.countdowns[roomID] = cd
	c.mu.Unlock()

	c.Events.Broadcast(roomID, CaptureStartEvent{Type: core.KindCaptureStart, Seconds: cd.remaining})
	log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Int("seconds", cd.remaining).Msg("countdown started")

	c.mu.Lock()
	cd.task = c.Sched.After(tickInterval, func() { c.tick(roomID) })
	c.mu.Unlock()
	return nil
}

// tick advances the countdown state machine. The room's existence is
// checked before every broadcast: if the room disappeared mid-sequence the
// remaining ticks are abandoned, and the abandonment is logged so the no-op
// stays observable.
func (c *Coordinator) tick(roomID domain.RoomID) {
	c.mu.Lock()
	cd, ok := c.countdowns[roomID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if !c.Store.Exists(roomID) {
		c.mu.Lock()
		delete(c.countdowns, roomID)
		c.mu.Unlock()
		log.Warn().Str("module", "app.coordinator").Str("room", string(roomID)).Msg("countdown abandoned, room gone")
		return
	}

	c.mu.Lock()
	remaining := cd.remaining
	if remaining > 0 {
		cd.remaining--
		cd.task = c.Sched.After(tickInterval, func() { c.tick(roomID) })
	} else {
		delete(c.countdowns, roomID)
	}
	c.mu.Unlock()

	if remaining > 0 {
		c.Events.Broadcast(roomID, CountdownTickEvent{Type: core.KindCountdownTick, N: remaining})
		return
	}
	c.Events.Broadcast(roomID, CaptureNowEvent{Type: core.KindCaptureNow})
}

// PhotoUploaded records a per-role asset and arbitrates the merge trigger.
// The readiness check and the in-flight marker are taken atomically in the
// Store, so two concurrent observations of "both assets present" dispatch
// exactly one merge.
func (c *Coordinator) PhotoUploaded(roomID domain.RoomID, id domain.ParticipantID, role domain.Role, slot int, ref string) error {
	info, err := c.Store.Info(roomID)
	if err != nil {
		return err
	}

	if info.Mode == domain.ModeBooth {
		if err := c.Store.SetSessionPhoto(roomID, id, role, ref); err != nil {
			return err
		}
		hostRef, guestRef, ok, err := c.Store.TryBeginSessionMerge(roomID)
		if err != nil {
			return err
		}
		if ok {
			go c.runSessionMerge(roomID, hostRef, guestRef, info.Settings)
		}
		return nil
	}

	if _, err := c.Store.SetSlotPhoto(roomID, id, role, slot, ref); err != nil {
		return err
	}
	if info.Settings.ComposeAll {
		slots, ok, err := c.Store.TryBeginBatch(roomID)
		if err != nil {
			return err
		}
		if ok {
			go c.runBatchCompose(roomID, slots, info.Settings)
		}
		return nil
	}
	hostRef, guestRef, ok, err := c.Store.TryBeginSlotMerge(roomID, slot)
	if err != nil {
		return err
	}
	if ok {
		go c.runSlotMerge(roomID, slot, hostRef, guestRef, info.Settings)
	}
	return nil
}

func (c *Coordinator) hint(st domain.Settings, slot int) core.MergeHint {
	return core.MergeHint{
		LayoutID:    st.LayoutID,
		Slot:        slot,
		AspectRatio: st.AspectRatio,
		Chroma:      st.Chroma,
	}
}

func (c *Coordinator) runSlotMerge(roomID domain.RoomID, slot int, hostRef, guestRef string, st domain.Settings) {
	defer c.Store.EndMerge(roomID)
	ctx, cancel := context.WithTimeout(context.Background(), c.MergeTimeout)
	defer cancel()

	merged, err := c.Merger.Merge(ctx, hostRef, guestRef, c.hint(st, slot))
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Int("slot", slot).Msg("slot merge failed")
		c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Slot: slot, Reason: err.Error()})
		return
	}
	if err := c.Store.SetSlotMerged(roomID, slot, merged); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Int("slot", slot).Msg("merged ref dropped")
		return
	}
	c.Events.Broadcast(roomID, AssetsMergedEvent{
		Type:   core.KindAssetsMerged,
		Slot:   slot,
		Merged: merged,
		Refs:   []string{hostRef, guestRef},
	})
}

func (c *Coordinator) runSessionMerge(roomID domain.RoomID, hostRef, guestRef string, st domain.Settings) {
	defer c.Store.EndMerge(roomID)
	ctx, cancel := context.WithTimeout(context.Background(), c.MergeTimeout)
	defer cancel()

	merged, err := c.Merger.Merge(ctx, hostRef, guestRef, c.hint(st, 0))
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("session merge failed")
		c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Reason: err.Error()})
		return
	}
	if err := c.Store.SetSessionMerged(roomID, merged); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("merged ref dropped")
		return
	}
	c.Events.Broadcast(roomID, AssetsMergedEvent{
		Type:   core.KindAssetsMerged,
		Merged: merged,
		Refs:   []string{hostRef, guestRef},
	})

	// Optional frame-overlay step before the session closes.
	result := merged
	if frame, ok := c.Layouts.Get(st.LayoutID); ok && frame.Overlay != "" {
		composed, err := c.Merger.Compose(ctx, []string{merged}, frame)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("overlay compose failed, keeping merged result")
		} else {
			result = composed
		}
	}
	sess, err := c.Store.CompleteSession(roomID, result)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("session completion dropped")
		return
	}
	c.Events.Broadcast(roomID, SessionCompleteEvent{Type: core.KindSessionComplete, SessionID: sess.ID, Result: result})
}

func (c *Coordinator) runBatchCompose(roomID domain.RoomID, slots []domain.PhotoSlot, st domain.Settings) {
	defer c.Store.EndMerge(roomID)
	ctx, cancel := context.WithTimeout(context.Background(), c.MergeTimeout)
	defer cancel()

	frame, ok := c.Layouts.Get(st.LayoutID)
	if !ok {
		log.Error().Str("module", "app.coordinator").Str("room", string(roomID)).Str("layout", st.LayoutID).Msg("batch compose: unknown layout")
		c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Reason: domain.ErrLayoutNotFound.Error()})
		return
	}

	merged := make([]string, 0, len(slots))
	for _, ps := range slots {
		ref, err := c.Merger.Merge(ctx, ps.HostPhoto, ps.GuestPhoto, c.hint(st, ps.Number))
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Int("slot", ps.Number).Msg("batch merge failed")
			c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Slot: ps.Number, Reason: err.Error()})
			return
		}
		if err := c.Store.SetSlotMerged(roomID, ps.Number, ref); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("merged ref dropped")
			return
		}
		merged = append(merged, ref)
	}
	result, err := c.Merger.Compose(ctx, merged, frame)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("batch compose failed")
		c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Reason: err.Error()})
		return
	}
	c.Events.Broadcast(roomID, AssetsMergedEvent{
		Type:   core.KindAssetsMerged,
		Refs:   merged,
		Result: result,
	})
}

// SegmentUploaded tracks one uploaded clip and emits the one-time
// all-segments event on the upload that completes the set.
func (c *Coordinator) SegmentUploaded(roomID domain.RoomID, id domain.ParticipantID, slot int, ref string, size int64) error {
	count, required, done, err := c.Store.AddSegment(roomID, id, slot, ref, size)
	if err != nil {
		return err
	}
	c.Events.Broadcast(roomID, SegmentUploadedEvent{
		Type:     core.KindSegmentUploaded,
		Slot:     slot,
		Uploader: id,
		Count:    count,
		Required: required,
	})
	if done {
		c.Events.Broadcast(roomID, AllSegmentsUploadedEvent{Type: core.KindAllSegmentsUploaded, Count: count})
	}
	return nil
}

// ComposeSegments builds the final video from a caller-chosen ordered slot
// selection. The selection must match the layout's slot count exactly and
// every chosen slot must have an uploaded segment.
func (c *Coordinator) ComposeSegments(roomID domain.RoomID, id domain.ParticipantID, slots []int) error {
	if _, err := c.Store.RoleOf(roomID, id); err != nil {
		return err
	}
	info, err := c.Store.Info(roomID)
	if err != nil {
		return err
	}
	frame, ok := c.Layouts.Get(info.Settings.LayoutID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLayoutNotFound, info.Settings.LayoutID)
	}
	if len(slots) != frame.SlotCount {
		return &domain.SlotCountError{Want: frame.SlotCount, Got: len(slots)}
	}
	refs, err := c.Store.SegmentRefs(roomID, slots)
	if err != nil {
		return err
	}
	armed, err := c.Store.BeginMerge(roomID)
	if err != nil {
		return err
	}
	if !armed {
		return domain.ErrMergeInFlight
	}
	go c.runCompose(roomID, refs, frame)
	return nil
}

func (c *Coordinator) runCompose(roomID domain.RoomID, refs []string, frame *layout.Frame) {
	defer c.Store.EndMerge(roomID)
	ctx, cancel := context.WithTimeout(context.Background(), c.MergeTimeout)
	defer cancel()

	result, err := c.Merger.Compose(ctx, refs, frame)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Msg("segment compose failed")
		c.Events.Broadcast(roomID, MergeFailedEvent{Type: core.KindMergeFailed, Reason: err.Error()})
		return
	}
	c.Events.Broadcast(roomID, AssetsMergedEvent{
		Type:   core.KindAssetsMerged,
		Refs:   refs,
		Result: result,
	})
}
