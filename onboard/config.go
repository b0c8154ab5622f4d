package onboard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration lets loop timings be written as "500ms" in the yaml file.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// NetworkConfig is the static endpoint table for the wireless cell. Fixed
// addresses, never mutated at runtime; the operator UI fetches it to find
// the camera streams.
type NetworkConfig struct {
	ESSID       string            `yaml:"essid"`
	AccessPoint string            `yaml:"access_point"`
	Station     string            `yaml:"station"`
	Operator    string            `yaml:"operator"`
	Robot       string            `yaml:"robot"`
	Cameras     map[string]string `yaml:"cameras"`
}

type MbedConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type LoopConfig struct {
	Rate           int      `yaml:"rate"` // Hz
	CommandTimeout Duration `yaml:"command_timeout"`
	FlipperGain    float64  `yaml:"flipper_gain"`
}

type SupervisorConfig struct {
	CurrentLimit float64 `yaml:"current_limit"` // amps
	TripCycles   int     `yaml:"trip_cycles"`
}

type MotorConfig struct {
	ID         uint8   `yaml:"id"` // mbed slot, 0-3
	Fault1     int     `yaml:"fault1"`
	Fault2     int     `yaml:"fault2"`
	Reset      int     `yaml:"reset"`
	Sensor     int     `yaml:"sensor"` // INA226 I2C address
	StartInput float64 `yaml:"start_input"`
	MaxSpeed   float64 `yaml:"max_speed"`
	Flipper    bool    `yaml:"flipper"`

	// Optional local pins for driving without the mbed. Zero means not
	// wired; the motor then needs the serial link to move.
	PWM int `yaml:"pwm,omitempty"`
	Dir int `yaml:"dir,omitempty"`
}

type RobotConfig struct {
	Version    int                    `yaml:"version"`
	Network    NetworkConfig          `yaml:"network"`
	Mbed       MbedConfig             `yaml:"mbed"`
	I2CDevice  string                 `yaml:"i2c_device"`
	Loop       LoopConfig             `yaml:"loop"`
	Supervisor SupervisorConfig       `yaml:"supervisor"`
	Motors     map[string]MotorConfig `yaml:"motors"`
}

func LoadConfig(filename string) (config RobotConfig, err error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return
	}

	if err = yaml.Unmarshal(raw, &config); err != nil {
		return
	}

	err = config.validate()
	return
}

// validate rejects timings the control loop cannot run with. A missing rate
// would otherwise divide the loop period by zero.
func (c RobotConfig) validate() error {
	if c.Loop.Rate <= 0 {
		return fmt.Errorf("loop rate should be a positive frequency, got %d", c.Loop.Rate)
	}
	if c.Loop.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout should be positive, got %v", time.Duration(c.Loop.CommandTimeout))
	}
	return nil
}

// DefaultConfig carries the literal wiring of the competition robot: the
// 192.168.54.0/24 cell and the pin map on the rpi. Keep these values in sync
// with the hardware when interoperating with it.
func DefaultConfig() RobotConfig {
	return RobotConfig{
		Version: 1,
		Network: NetworkConfig{
			ESSID:       "yozakura",
			AccessPoint: "192.168.54.160",
			Station:     "192.168.54.161",
			Operator:    "192.168.54.162",
			Robot:       "192.168.54.163",
			Cameras: map[string]string{
				"overview": "192.168.54.200",
				"front":    "192.168.54.210",
				"rear":     "192.168.54.220",
				"arm":      "192.168.54.225",
			},
		},
		Mbed:      MbedConfig{Device: "/dev/ttyACM0", Baud: 9600},
		I2CDevice: "/dev/i2c-1",
		Loop: LoopConfig{
			Rate:           20,
			CommandTimeout: Duration(500 * time.Millisecond),
			FlipperGain:    4.0,
		},
		Supervisor: SupervisorConfig{
			CurrentLimit: 15.0,
			TripCycles:   5,
		},
		Motors: map[string]MotorConfig{
			"left_motor":    {ID: 0, Fault1: 11, Fault2: 12, Reset: 13, Sensor: 0x40, StartInput: 0.2, MaxSpeed: 1.0},
			"right_motor":   {ID: 1, Fault1: 15, Fault2: 16, Reset: 18, Sensor: 0x44, StartInput: 0.2, MaxSpeed: 1.0},
			"left_flipper":  {ID: 2, Fault1: 31, Fault2: 32, Reset: 33, Sensor: 0x47, MaxSpeed: 0.6, Flipper: true},
			"right_flipper": {ID: 3, Fault1: 35, Fault2: 36, Reset: 37, Sensor: 0x48, MaxSpeed: 0.6, Flipper: true},
		},
	}
}
