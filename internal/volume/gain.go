package volume

// Gain-type tags recognized by the original stream-manager-volume.c
// gain table (AUDIO_GAIN_TYPE_*). The Store treats a gain tag as an
// opaque string key, so a tuned INI defining an unlisted tag still
// works — these are named here purely for readability at call sites
// (SPEC_FULL §4).
const (
	GainDefault    = "default"
	GainDialer     = "dialer"
	GainTouch      = "touch"
	GainAF         = "af"
	GainShutter1   = "shutter1"
	GainShutter2   = "shutter2"
	GainCamcording = "camcording"
	GainMIDI       = "midi"
	GainBooting    = "booting"
	GainVideo      = "video"
	GainTTS        = "tts"
)
