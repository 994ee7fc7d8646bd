// Package capture defines the narrow interfaces over platform input
// capabilities: speech recognition, speech playback, screen capture and
// clipboard paste. The session manager owns start/stop lifecycle and
// subscribes to the normalized events; the platform bindings themselves
// live outside this module.
package capture

import "context"

// Image is a captured or pasted still image.
type Image struct {
	Data []byte
	MIME string
	Name string
}

// ErrorKind classifies speech recognition failures.
type ErrorKind string

const (
	ErrPermissionDenied ErrorKind = "permission-denied"
	ErrNoSpeech         ErrorKind = "no-speech"
	ErrOther            ErrorKind = "other"
)

// SpeechError is a normalized recognition failure.
type SpeechError struct {
	Kind    ErrorKind
	Message string
}

func (e SpeechError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// SpeechEvents receives recognition outcomes. Exactly one of Result,
// End or Err fires per capture; Result carries the final transcript.
type SpeechEvents struct {
	Result func(transcript string)
	End    func()
	Err    func(err SpeechError)
}

// SpeechRecognizer captures one utterance at a time.
type SpeechRecognizer interface {
	Start(events SpeechEvents) error
	Stop()
}

// Synthesizer plays back text as speech. Cancel is safe to call at any
// time, including when nothing is playing.
type Synthesizer interface {
	Speak(text string) error
	Cancel()
	SetVoice(name string)
	SetRate(rate float64)
}

// ScreenCapturer owns a live screen-capture stream. Ended fires when
// the underlying hardware or OS tears the stream down; Stop releases
// tracks explicitly.
type ScreenCapturer interface {
	Start(onEnded func()) error
	Stop()
	Active() bool
	Frame(ctx context.Context) (Image, error)
}

// Clipboard extracts a pasted image, if one is present.
type Clipboard interface {
	Image() (*Image, bool)
}

// NopSynthesizer discards playback requests. Used when voice replies
// are disabled or no platform binding is wired.
type NopSynthesizer struct{}

func (NopSynthesizer) Speak(string) error { return nil }
func (NopSynthesizer) Cancel()            {}
func (NopSynthesizer) SetVoice(string)    {}
func (NopSynthesizer) SetRate(float64)    {}
