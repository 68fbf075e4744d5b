package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLLMGenerate      ReasonCode = "llm_generate"
	ReasonLLMNotConfigured ReasonCode = "llm_not_configured"
	ReasonLLMRateLimit     ReasonCode = "llm_rate_limit"

	ReasonTTSSynthesize     ReasonCode = "tts_synthesize"
	ReasonTTSNotConfigured  ReasonCode = "tts_not_configured"
	ReasonSupervisorParse   ReasonCode = "supervisor_parse"
	ReasonSupervisorRequest ReasonCode = "supervisor_request"

	ReasonTelephonyPlaceCall   ReasonCode = "telephony_place_call"
	ReasonTelephonyUnverified  ReasonCode = "telephony_destination_unverified"
	ReasonArchiveWrite         ReasonCode = "archive_write"
	ReasonEventPublish         ReasonCode = "event_publish"
	ReasonTransportInvalidSign ReasonCode = "webhook_invalid_signature"
)
