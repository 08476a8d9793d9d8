package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TrainingChanged is true if any runtime training setting changed.
	TrainingChanged bool
	NewTraining     TrainingConfig

	// TTSVoiceChanged is true if the TTS voice ID changed. The provider
	// itself cannot be swapped without restart.
	TTSVoiceChanged bool
	NewTTSVoice     string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Training != new.Training {
		d.TrainingChanged = true
		d.NewTraining = new.Training
	}

	if old.Providers.TTS.Voice != new.Providers.TTS.Voice {
		d.TTSVoiceChanged = true
		d.NewTTSVoice = new.Providers.TTS.Voice
	}

	return d
}
