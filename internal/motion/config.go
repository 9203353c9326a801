package motion

// PickupConfig holds the tunables of the pickup detector.
type PickupConfig struct {
	ModuleLow     float64 `toml:"module_low" yaml:"module_low" json:"module_low"`
	ModuleHigh    float64 `toml:"module_high" yaml:"module_high" json:"module_high"`
	FlatAngle     float64 `toml:"flat_angle" yaml:"flat_angle" json:"flat_angle"`
	RaisedPitch   float64 `toml:"raised_pitch" yaml:"raised_pitch" json:"raised_pitch"`
	MoveThreshold float64 `toml:"move_threshold" yaml:"move_threshold" json:"move_threshold"`
	RestCount     int     `toml:"rest_count" yaml:"rest_count" json:"rest_count"`
	WindowSamples int     `toml:"window_samples" yaml:"window_samples" json:"window_samples"`
}

// FlipConfig holds the tunables of the flip detector.
type FlipConfig struct {
	ModuleLow          float64 `toml:"module_low" yaml:"module_low" json:"module_low"`
	ModuleHigh         float64 `toml:"module_high" yaml:"module_high" json:"module_high"`
	PitchHorizontal    float64 `toml:"pitch_horizontal" yaml:"pitch_horizontal" json:"pitch_horizontal"`
	RollHorizontal     float64 `toml:"roll_horizontal" yaml:"roll_horizontal" json:"roll_horizontal"`
	FlippingTimerMs    int     `toml:"flipping_timer_ms" yaml:"flipping_timer_ms" json:"flipping_timer_ms"`
	FlippingIntervalMs int     `toml:"flipping_interval_ms" yaml:"flipping_interval_ms" json:"flipping_interval_ms"`
}

// RotateConfig holds the tunables of the rotate detector.
type RotateConfig struct {
	ModuleLow      float64 `toml:"module_low" yaml:"module_low" json:"module_low"`
	ModuleHigh     float64 `toml:"module_high" yaml:"module_high" json:"module_high"`
	FlatThreshold  float64 `toml:"flat_threshold" yaml:"flat_threshold" json:"flat_threshold"`
	AngleTolerance float64 `toml:"angle_tolerance" yaml:"angle_tolerance" json:"angle_tolerance"`
}

// ShakeConfig holds the tunables of the shake detector.
type ShakeConfig struct {
	Threshold     float64 `toml:"threshold" yaml:"threshold" json:"threshold"`
	DebounceCount int     `toml:"debounce_count" yaml:"debounce_count" json:"debounce_count"`
}

// PocketConfig holds the tunables of the pocket detector.
type PocketConfig struct {
	NearDistance  float64 `toml:"near_distance" yaml:"near_distance" json:"near_distance"`
	DarkLux       float64 `toml:"dark_lux" yaml:"dark_lux" json:"dark_lux"`
	FlatZ         float64 `toml:"flat_z" yaml:"flat_z" json:"flat_z"`
	DebounceCount int     `toml:"debounce_count" yaml:"debounce_count" json:"debounce_count"`
}

// NearEarConfig holds the tunables of the near-ear detector.
type NearEarConfig struct {
	CounterThreshold int     `toml:"counter_threshold" yaml:"counter_threshold" json:"counter_threshold"`
	HorizontalPitch  float64 `toml:"horizontal_pitch" yaml:"horizontal_pitch" json:"horizontal_pitch"`
	RollHorizontal   float64 `toml:"roll_horizontal" yaml:"roll_horizontal" json:"roll_horizontal"`
	VerticalPitch    float64 `toml:"vertical_pitch" yaml:"vertical_pitch" json:"vertical_pitch"`
	StillTolerance   float64 `toml:"still_tolerance" yaml:"still_tolerance" json:"still_tolerance"`
	NearDistance     float64 `toml:"near_distance" yaml:"near_distance" json:"near_distance"`
}

// Config groups the tunables of every sensor detector.
type Config struct {
	Pickup  PickupConfig  `toml:"pickup" yaml:"pickup" json:"pickup"`
	Flip    FlipConfig    `toml:"flip" yaml:"flip" json:"flip"`
	Rotate  RotateConfig  `toml:"rotate" yaml:"rotate" json:"rotate"`
	Shake   ShakeConfig   `toml:"shake" yaml:"shake" json:"shake"`
	Pocket  PocketConfig  `toml:"pocket" yaml:"pocket" json:"pocket"`
	NearEar NearEarConfig `toml:"near_ear" yaml:"near_ear" json:"near_ear"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Pickup: PickupConfig{
			ModuleLow:     7.5,
			ModuleHigh:    12.0,
			FlatAngle:     20,
			RaisedPitch:   30,
			MoveThreshold: 1.0,
			RestCount:     3,
			WindowSamples: 10,
		},
		Flip: FlipConfig{
			ModuleLow:          7.5,
			ModuleHigh:         12.0,
			PitchHorizontal:    20,
			RollHorizontal:     20,
			FlippingTimerMs:    1500,
			FlippingIntervalMs: 20,
		},
		Rotate: RotateConfig{
			ModuleLow:      7.5,
			ModuleHigh:     12.0,
			FlatThreshold:  0.8,
			AngleTolerance: 30,
		},
		Shake: ShakeConfig{
			Threshold: 6.0,
		},
		Pocket: PocketConfig{
			NearDistance: 3.0,
			DarkLux:      10,
			FlatZ:        7.0,
		},
		NearEar: NearEarConfig{
			CounterThreshold: 3,
			HorizontalPitch:  20,
			RollHorizontal:   20,
			VerticalPitch:    40,
			StillTolerance:   1.5,
			NearDistance:     3.0,
		},
	}
}
