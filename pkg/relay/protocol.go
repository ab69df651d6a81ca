package relay

import (
	"github.com/voxprep/go-voxprep/pkg/interview"
)

// Client message types.
const (
	msgStartInterview = "start_interview"
	msgEndInterview   = "end_interview"
	msgAudioChunk     = "audio_chunk"
)

// Server message types.
const (
	msgConnected            = "connected"
	msgInterviewStarting    = "interview_starting"
	msgInterviewStarted     = "interview_started"
	msgInterviewEnded       = "interview_ended"
	msgAITranscription      = "ai_transcription"
	msgStudentTranscription = "student_transcription"
	msgStudentSpeechStarted = "student_speech_started"
	msgStudentSpeechEnded   = "student_speech_ended"
	msgError                = "error"
)

// clientMessage is the union of JSON messages a client may send.
type clientMessage struct {
	Type             string                      `json:"type"`
	CandidateContext *interview.CandidateContext `json:"candidateContext,omitempty"`

	// audio_chunk fields; rate and channels are optional hints
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// eventMessage is a bare server notification.
type eventMessage struct {
	Type string `json:"type"`
}

// transcriptionMessage carries transcript text to the client.
type transcriptionMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// errorMessage carries a user-safe error to the client.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// userSafeMessage translates provider-internal error codes into text
// a student can act on. The raw code still travels alongside for
// client-side diagnostics.
func userSafeMessage(code string) string {
	switch code {
	case "invalid_api_key", "authentication_error":
		return "The interview service is misconfigured. Please contact support."
	case "insufficient_quota", "quota_exceeded":
		return "The interview service is temporarily at capacity. Please try again later."
	case "rate_limit_exceeded":
		return "Too many interviews are running right now. Please try again in a moment."
	case "session_expired":
		return "The interview session expired. Please start a new interview."
	case "connection_closed":
		return "The connection to the interviewer was lost. Please start a new interview."
	default:
		return "Something went wrong during the interview. Please try again."
	}
}
