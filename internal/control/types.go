package control

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientID identifies one requesting client. The router treats it as opaque.
type ClientID string

// Mode is the derived control mode of the device.
type Mode uint8

const (
	ModeUndefined Mode = iota
	ModeManual
	ModeAutomated
	ModeProblem
)

func (m Mode) String() string {
	switch m {
	case ModeUndefined:
		return "undefined"
	case ModeManual:
		return "manual"
	case ModeAutomated:
		return "automated"
	case ModeProblem:
		return "problem"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Problem identifies a class of experiment fault. The set is open on the
// wire; the named values are the ones this deployment knows how to print.
type Problem uint8

const (
	ProblemNone Problem = iota
	ProblemTipShapeChanged
	ProblemDeviceMalfunction
	ProblemFeedbackUnderSet
	ProblemFeedbackOverSet
)

var problemNames = map[Problem]string{
	ProblemNone:              "none",
	ProblemTipShapeChanged:   "tip_shape_changed",
	ProblemDeviceMalfunction: "device_malfunction",
	ProblemFeedbackUnderSet:  "feedback_under_set",
	ProblemFeedbackOverSet:   "feedback_over_set",
}

func (p Problem) String() string {
	if name, ok := problemNames[p]; ok {
		return name
	}
	return "problem(" + strconv.Itoa(int(p)) + ")"
}

// ParseProblem accepts a known problem name or a numeric id.
func ParseProblem(raw string) (Problem, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for p, name := range problemNames {
		if name == key {
			return p, nil
		}
	}
	n, err := strconv.ParseUint(key, 10, 8)
	if err != nil {
		return ProblemNone, fmt.Errorf("control: unknown problem %q", raw)
	}
	return Problem(n), nil
}

// RequestKind is the closed set of client requests.
type RequestKind uint8

const (
	RequestUnknown RequestKind = iota
	RequestStartScan
	RequestStopScan
	RequestSetScanParams
	RequestRequestCtrl
	RequestReleaseCtrl
	RequestAddProblem
	RequestRemoveProblem
	RequestSetControlMode
	RequestEndExperiment
)

var requestNames = map[RequestKind]string{
	RequestUnknown:        "unknown",
	RequestStartScan:      "start_scan",
	RequestStopScan:       "stop_scan",
	RequestSetScanParams:  "set_scan_params",
	RequestRequestCtrl:    "request_ctrl",
	RequestReleaseCtrl:    "release_ctrl",
	RequestAddProblem:     "add_exp_prblm",
	RequestRemoveProblem:  "rmv_exp_prblm",
	RequestSetControlMode: "set_control_mode",
	RequestEndExperiment:  "end_experiment",
}

func (k RequestKind) String() string {
	if name, ok := requestNames[k]; ok {
		return name
	}
	return "request(" + strconv.Itoa(int(k)) + ")"
}

// DeviceAffecting reports whether k must pass through the device gateway.
func (k RequestKind) DeviceAffecting() bool {
	switch k {
	case RequestStartScan, RequestStopScan, RequestSetScanParams:
		return true
	default:
		return false
	}
}

// Response is the single outcome returned for every request.
type Response uint8

const (
	ResponseUndefined Response = iota
	ResponseSuccess
	ResponseFailure
	ResponseCmdNotSupported
	ResponseNoResponse
	ResponseAlreadyUnderControl
	ResponseWrongControlMode
	ResponseNotInControl
	ResponsePerformingScan
)

var responseNames = map[Response]string{
	ResponseUndefined:           "undefined",
	ResponseSuccess:             "success",
	ResponseFailure:             "failure",
	ResponseCmdNotSupported:     "cmd_not_supported",
	ResponseNoResponse:          "no_response",
	ResponseAlreadyUnderControl: "already_under_control",
	ResponseWrongControlMode:    "wrong_control_mode",
	ResponseNotInControl:        "not_in_control",
	ResponsePerformingScan:      "performing_scan",
}

func (r Response) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}
	return "response(" + strconv.Itoa(int(r)) + ")"
}

// Request is one client->router message.
type Request struct {
	Kind    RequestKind
	Client  ClientID
	Problem Problem
	// Mode is only carried by the administrator set-mode request.
	Mode Mode
	// Params is the scan parameter payload, opaque to the router.
	Params []byte
}

// DeviceCommand is what the gateway forwards; the payload is the client's, unmodified.
type DeviceCommand struct {
	Kind   RequestKind
	Params []byte
}
