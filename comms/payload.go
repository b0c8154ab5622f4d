package comms

import (
	"github.com/KyotoMechatronics/goyozakura/onboard"
)

// Cmd is one JSON command from the operator station.
//
//	{"cmd": "drive", "value": 0.8, "value2": -0.2}
//	{"cmd": "flipper", "name": "left_flipper", "value": 0.5}
//	{"cmd": "reset_fault", "name": "right_flipper"}
//	{"cmd": "stop"}
type Cmd struct {
	Cmd    string  `json:"cmd"`
	Name   string  `json:"name,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Value2 float64 `json:"value2,omitempty"`
}

// StatePayload is the telemetry frame pushed upstream: the loop snapshot
// plus the static camera endpoints so the operator UI can lay out streams.
type StatePayload struct {
	onboard.RobotState
	Cameras map[string]string `json:"cameras,omitempty"`
}
