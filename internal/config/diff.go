package config

import "reflect"

// ConfigDiff describes what changed between two configurations. Only changes
// that can be applied to a running server are broken out individually; for
// everything else RestartRequired is set and the server keeps the old value.
type ConfigDiff struct {
	// LogLevelChanged is set when server.log_level changed. NewLogLevel
	// holds the new value.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranslationChanged is set when any translation default changed
	// (languages, chunk size, instructions, post-processing). New jobs pick
	// up the new defaults; running jobs keep the old ones.
	TranslationChanged bool

	// SubtitlesChanged is set when the SRT block limits changed.
	SubtitlesChanged bool

	// RestartRequired is set when a field that cannot be applied at runtime
	// changed (provider backends, listen address, TLS, job concurrency,
	// memory, notifications).
	RestartRequired bool
}

// Any reports whether the diff contains any change at all.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TranslationChanged || d.SubtitlesChanged || d.RestartRequired
}

// Diff compares two configurations and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Translation != new.Translation {
		d.TranslationChanged = true
	}
	if old.Subtitles != new.Subtitles {
		d.SubtitlesChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) ||
		!reflect.DeepEqual(old.Provider, new.Provider) ||
		old.Jobs != new.Jobs ||
		old.Memory != new.Memory ||
		!reflect.DeepEqual(old.Notify, new.Notify) {
		d.RestartRequired = true
	}

	return d
}
