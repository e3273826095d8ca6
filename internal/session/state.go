package session

// State is a step of the session state machine.
type State int

const (
	StateStart State = iota
	StateDiscover
	StateAskOCR
	StateAskDuplex
	StateAskWID
	StateAskFormType
	StateProcess
	StateAskContinue
	StateTeardown
	StateEnd
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDiscover:
		return "discover"
	case StateAskOCR:
		return "ask_ocr"
	case StateAskDuplex:
		return "ask_duplex"
	case StateAskWID:
		return "ask_wid"
	case StateAskFormType:
		return "ask_form_type"
	case StateProcess:
		return "process"
	case StateAskContinue:
		return "ask_continue"
	case StateTeardown:
		return "teardown"
	case StateEnd:
		return "end"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
