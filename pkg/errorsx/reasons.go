package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTNotConfigured ReasonCode = "stt_not_configured"
	ReasonSTTTranscribe    ReasonCode = "stt_transcribe"
	ReasonSTTRateLimit     ReasonCode = "stt_rate_limit"

	ReasonTTSNotConfigured ReasonCode = "tts_not_configured"
	ReasonTTSConnect       ReasonCode = "tts_connect"
	ReasonTTSSynthesize    ReasonCode = "tts_synthesize"
	ReasonTTSRateLimit     ReasonCode = "tts_rate_limit"
	ReasonTTSWrite         ReasonCode = "tts_write"

	ReasonLLMNotConfigured ReasonCode = "llm_not_configured"
	ReasonLLMGenerate      ReasonCode = "llm_generate"
	ReasonLLMRateLimit     ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen   ReasonCode = "llm_circuit_open"

	ReasonWeatherNotConfigured ReasonCode = "weather_not_configured"
	ReasonWeatherFetch         ReasonCode = "weather_fetch"
	ReasonWeatherDecode        ReasonCode = "weather_decode"

	ReasonNotifySend ReasonCode = "notify_send"

	ReasonEmptyResult ReasonCode = "empty_result"
	ReasonCanceled    ReasonCode = "canceled"
)
