package session

import (
	"time"

	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Stamp carries the id and time for any message an event may create. The
// runtime fills it in so the reducer stays deterministic.
type Stamp struct {
	ID domain.MessageID
	At time.Time
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// Send submits text (or the composer when empty) as a user turn.
type Send struct {
	Stamp
	Text string
}

// Generated delivers the reply for Turn.
type Generated struct {
	Stamp
	Turn  uint64
	Reply *orchestrator.Reply
}

// GenerationFailed aborts Turn.
type GenerationFailed struct {
	Stamp
	Turn uint64
	Err  error
}

// RevealStep shows the next prefix of the pending message.
type RevealStep struct {
	Turn    uint64
	Partial string
}

// RevealDone commits the pending message.
type RevealDone struct {
	Turn uint64
	Full string
}

type Confirm struct {
	MessageID domain.MessageID
}

type Cancel struct {
	Stamp
	MessageID domain.MessageID
}

// Executed reports the executor's result for MessageID.
type Executed struct {
	Stamp
	MessageID domain.MessageID
	Result    domain.ExecutionResult
}

// ExecutionFailed reports that the executor could not run at all.
type ExecutionFailed struct {
	Stamp
	MessageID domain.MessageID
	Err       error
}

type ComposerChanged struct {
	Text string
}

type RecordingStarted struct{}

type RecordingAborted struct{}

type Transcribing struct{}

type Transcribed struct {
	Text string
}

type Analyzing struct{}

type ImageDescribed struct {
	Text  string
	Image domain.ImageRef
}

// CaptureFailed covers microphone, transcription and image failures. The
// composer is left as it was.
type CaptureFailed struct {
	Stamp
	Err error
}

// Loaded replaces the session with a persisted conversation.
type Loaded struct {
	Conversation domain.Conversation
}

// Reset starts over with a fresh seed message.
type Reset struct {
	Stamp
}

type Saved struct {
	ID domain.ConversationID
}

type PersistFailed struct {
	Err error
}

func (Send) isEvent()             {}
func (Generated) isEvent()        {}
func (GenerationFailed) isEvent() {}
func (RevealStep) isEvent()       {}
func (RevealDone) isEvent()       {}
func (Confirm) isEvent()          {}
func (Cancel) isEvent()           {}
func (Executed) isEvent()         {}
func (ExecutionFailed) isEvent()  {}
func (ComposerChanged) isEvent()  {}
func (RecordingStarted) isEvent() {}
func (RecordingAborted) isEvent() {}
func (Transcribing) isEvent()     {}
func (Transcribed) isEvent()      {}
func (Analyzing) isEvent()        {}
func (ImageDescribed) isEvent()   {}
func (CaptureFailed) isEvent()    {}
func (Loaded) isEvent()           {}
func (Reset) isEvent()            {}
func (Saved) isEvent()            {}
func (PersistFailed) isEvent()    {}
