package capture

import (
	"context"
	"strings"
	"sync"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

const (
	msgCaptureFailed       = "I couldn't access the microphone. Please try again."
	msgTranscriptionFailed = "I couldn't understand that recording. Please try again or type your message."
)

// Recorder owns at most one microphone acquisition at a time and turns it
// into text. The device is released exactly once per acquisition, whatever
// path ends it.
type Recorder struct {
	mic         domain.Microphone
	transcriber domain.Transcriber

	mu     sync.Mutex
	active *acquisition
}

type acquisition struct {
	capture domain.AudioCapture
	once    sync.Once
	err     error
}

func (a *acquisition) release() error {
	a.once.Do(func() {
		a.err = a.capture.Release()
	})
	return a.err
}

func NewRecorder(mic domain.Microphone, transcriber domain.Transcriber) *Recorder {
	return &Recorder{mic: mic, transcriber: transcriber}
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start acquires the microphone.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return domain.NewError(domain.CodeCapture, "already recording").
			WithUserMessage("A recording is already in progress.")
	}
	if r.mic == nil {
		return domain.NewError(domain.CodeCapture, "no microphone configured").
			WithUserMessage(msgCaptureFailed)
	}

	c, err := r.mic.Open(ctx)
	if err != nil {
		observability.CaptureErrors.WithLabelValues("open").Inc()
		e := domain.NewError(domain.CodeCapture, "open microphone").WithUserMessage(msgCaptureFailed)
		e.Underlying = err
		return e
	}

	r.active = &acquisition{capture: c}
	return nil
}

// Stop ends the capture, releases the device and transcribes the audio.
func (r *Recorder) Stop(ctx context.Context, userID domain.UserID) (string, error) {
	a := r.take()
	if a == nil {
		return "", domain.NewError(domain.CodeCapture, "not recording").
			WithUserMessage("There is no recording to stop.")
	}

	log := observability.LoggerFromContext(ctx).With("user_id", userID)

	audio, mimeType, err := a.capture.Stop()
	if relErr := a.release(); relErr != nil {
		log.Warn("microphone release failed", "error", relErr)
	}
	if err != nil {
		observability.CaptureErrors.WithLabelValues("stop").Inc()
		e := domain.NewError(domain.CodeCapture, "stop recording").WithUserMessage(msgCaptureFailed)
		e.Underlying = err
		return "", e
	}
	if len(audio) == 0 {
		observability.CaptureErrors.WithLabelValues("stop").Inc()
		return "", domain.NewError(domain.CodeCapture, "no audio captured").
			WithUserMessage("I didn't hear anything. Please try again.")
	}

	if r.transcriber == nil {
		return "", domain.NewError(domain.CodeTranscription, "no transcriber configured").
			WithUserMessage(msgTranscriptionFailed)
	}

	text, err := r.transcriber.Transcribe(ctx, audio, mimeType, userID)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyTranscript
	}
	if err != nil {
		observability.CaptureErrors.WithLabelValues("transcribe").Inc()
		log.Error("transcription failed", "error", err, "bytes", len(audio))
		e := domain.NewError(domain.CodeTranscription, "transcribe recording").WithUserMessage(msgTranscriptionFailed)
		e.Underlying = err
		return "", e
	}

	return strings.TrimSpace(text), nil
}

// Abort ends the capture without transcribing.
func (r *Recorder) Abort() error {
	a := r.take()
	if a == nil {
		return nil
	}
	_, _, _ = a.capture.Stop()
	return a.release()
}

func (r *Recorder) take() *acquisition {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.active
	r.active = nil
	return a
}
