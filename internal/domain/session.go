package domain

import "time"

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// Session is one guest's capture round in booth mode. A room accumulates a
// history of sessions across guest rotations.
type Session struct {
	ID          string        `json:"id"`
	GuestID     ParticipantID `json:"guestId"`
	HostPhoto   string        `json:"hostPhoto,omitempty"`
	GuestPhoto  string        `json:"guestPhoto,omitempty"`
	MergedPhoto string        `json:"mergedPhoto,omitempty"`
	Result      string        `json:"result,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt time.Time     `json:"completedAt,omitempty"`
}

// ReadyForMerge reports whether both per-role photos are present and no
// merge result has been produced yet.
func (s *Session) ReadyForMerge() bool {
	return s.HostPhoto != "" && s.GuestPhoto != "" && s.MergedPhoto == ""
}

// PhotoSlot is a numbered capture position in pair mode, holding the
// per-role asset refs and the merged result for that position.
type PhotoSlot struct {
	Number     int       `json:"number"`
	HostPhoto  string    `json:"hostPhoto,omitempty"`
	GuestPhoto string    `json:"guestPhoto,omitempty"`
	Merged     string    `json:"merged,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (p *PhotoSlot) Complete() bool {
	return p.HostPhoto != "" && p.GuestPhoto != ""
}

func (p *PhotoSlot) ReadyForMerge() bool {
	return p.Complete() && p.Merged == ""
}

// VideoSegment is one uploaded clip for a numbered slot.
type VideoSegment struct {
	Slot       int           `json:"slot"`
	UploaderID ParticipantID `json:"uploaderId"`
	Ref        string        `json:"ref"`
	Size       int64         `json:"size"`
	UploadedAt time.Time     `json:"uploadedAt"`
}
