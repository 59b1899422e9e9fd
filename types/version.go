package types

// Version is the release version. The CLI, journal records and published
// completion events all carry it.
const Version = "0.3.0"

// RecordVersion tags every journal record. It moves with Version.
const RecordVersion = Version

// UserAgent identifies omcloud to adapter endpoints.
func UserAgent() string {
	return "omcloud/" + Version
}
