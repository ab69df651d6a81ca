package conversation

// Speaker identifies who an event refers to.
type Speaker string

const (
	// SpeakerUser is the candidate.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant is the AI interviewer.
	SpeakerAssistant Speaker = "assistant"
)

// EventType enumerates the normalized provider events.
type EventType int

const (
	// EventSessionReady signals the session is configured and the agent
	// is about to speak.
	EventSessionReady EventType = iota

	// EventAudioChunk carries PCM16 assistant audio in Audio.
	EventAudioChunk

	// EventPartialTranscript carries an in-progress transcript delta.
	EventPartialTranscript

	// EventFinalTranscript carries a completed utterance transcript.
	EventFinalTranscript

	// EventSpeechStarted signals the speaker began talking.
	EventSpeechStarted

	// EventSpeechStopped signals the speaker stopped talking.
	EventSpeechStopped

	// EventConversationEnded signals the provider closed the session.
	EventConversationEnded

	// EventProviderError carries a structured provider error.
	EventProviderError
)

// String returns a human-readable event type.
func (t EventType) String() string {
	switch t {
	case EventSessionReady:
		return "session_ready"
	case EventAudioChunk:
		return "audio_chunk"
	case EventPartialTranscript:
		return "partial_transcript"
	case EventFinalTranscript:
		return "final_transcript"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechStopped:
		return "speech_stopped"
	case EventConversationEnded:
		return "conversation_ended"
	case EventProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Event is one normalized provider event. Which fields are set depends on
// Type: Audio for EventAudioChunk, Text and Speaker for transcripts,
// Speaker for speech boundaries, Code and Message for provider errors.
type Event struct {
	Type    EventType
	Audio   []byte
	Text    string
	Speaker Speaker
	Code    string
	Message string
}
