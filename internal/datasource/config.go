package datasource

const (
	// LiveRecordThreshold is the record count expected from the production backend.
	LiveRecordThreshold = 18000

	// MockRecordThreshold is the record count expected from the synthetic dataset.
	MockRecordThreshold = 5000
)

// Config is the descriptor derived from a Mode. It is computed once per
// process and never mutated, so it can be shared by value.
type Config struct {
	Mode                Mode   `json:"mode"`
	IsLive              bool   `json:"is_live"`
	IsMock              bool   `json:"is_mock"`
	DisplayName         string `json:"display_name"`
	ExpectedRecordCount int    `json:"expected_record_count"`
	Description         string `json:"description"`
}

// BuildConfig derives the Config for mode. It has no side effects. An
// unknown mode yields a *ConfigurationError instead of a guessed default.
func BuildConfig(mode Mode) (Config, error) {
	switch mode {
	case ModeLive:
		return Config{
			Mode:                ModeLive,
			IsLive:              true,
			DisplayName:         "Live Data",
			ExpectedRecordCount: LiveRecordThreshold,
			Description:         "Production data served from the hosted Supabase database",
		}, nil
	case ModeMock:
		return Config{
			Mode:                ModeMock,
			IsMock:              true,
			DisplayName:         "Mock Data",
			ExpectedRecordCount: MockRecordThreshold,
			Description:         "Synthetic development dataset for local work and tests",
		}, nil
	default:
		return Config{}, &ConfigurationError{Raw: string(mode), Mode: ModeUnknown, Err: ErrUnknownMode}
	}
}
