package engine

// Job names the engine enqueues for the async notifier, with the
// parameter keys each job carries.
const (
	TaskSendConfirmationEmail = "send_confirmation_email"
	TaskSetFeaturedSpeaker    = "set_featured_speaker"

	ParamEmail          = "email"
	ParamConferenceInfo = "conferenceInfo"
	ParamSpeaker        = "speaker"
)
