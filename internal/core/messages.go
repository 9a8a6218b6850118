package core

// Kind tags every inbound and outbound signaling message. The set is
// closed: the router matches inbound kinds exhaustively and logs anything
// else without touching the connection.
type Kind string

// Inbound.
const (
	KindJoin            Kind = "join"
	KindLeave           Kind = "leave"
	KindPing            Kind = "ping"
	KindOffer           Kind = "offer"
	KindAnswer          Kind = "answer"
	KindCandidate       Kind = "candidate"
	KindStartCapture    Kind = "start-capture"
	KindPhotoUploaded   Kind = "photo-uploaded"
	KindSegmentUploaded Kind = "segment-uploaded"
	KindComposeSegments Kind = "compose-segments"
	KindFrameSelected   Kind = "frame-selected"
	KindSettingsSync    Kind = "settings-sync"
	KindSessionReset    Kind = "session-reset"
)

// Outbound.
const (
	KindJoined              Kind = "joined"
	KindPeerJoined          Kind = "peer-joined"
	KindPeerLeft            Kind = "peer-left"
	KindWaitingForPeer      Kind = "waiting-for-peer"
	KindLeft                Kind = "left"
	KindRoomClosed          Kind = "room-closed"
	KindSuperseded          Kind = "superseded"
	KindCaptureStart        Kind = "capture-start"
	KindCountdownTick       Kind = "countdown-tick"
	KindCaptureNow          Kind = "capture-now"
	KindAssetsMerged        Kind = "assets-merged"
	KindMergeFailed         Kind = "merge-failed"
	KindSessionComplete     Kind = "session-complete"
	KindAllSegmentsUploaded Kind = "all-segments-uploaded"
	KindSettingsUpdated     Kind = "settings-updated"
	KindPong                Kind = "pong"
	KindError               Kind = "error"
)
