package protocol

import "encoding/json"

// LRP (Language Runtime Protocol) is the Jupyter-shaped request/reply
// family carried on Shell. Beyond ExecuteRequest and kernel_info/shutdown/
// interrupt, IsCompleteRequest, ConnectRequest, CommInfoRequest,
// HistoryRequest, InspectRequest, and CompleteRequest round out the full
// REPL contract.

// LRPRequestType is the msg_type discriminator for an LRP frame's header.
type LRPRequestType string

const (
	ExecuteRequestType    LRPRequestType = "execute_request"
	InspectRequestType    LRPRequestType = "inspect_request"
	CompleteRequestType   LRPRequestType = "complete_request"
	HistoryRequestType    LRPRequestType = "history_request"
	IsCompleteRequestType LRPRequestType = "is_complete_request"
	ConnectRequestType    LRPRequestType = "connect_request"
	CommInfoRequestType   LRPRequestType = "comm_info_request"
	KernelInfoRequestType LRPRequestType = "kernel_info_request"
	ShutdownRequestType   LRPRequestType = "shutdown_request"
	InterruptRequestType  LRPRequestType = "interrupt_request"
)

// ExecuteRequest runs code in the kernel's current execution context.
type ExecuteRequest struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent"`
	StoreHistory bool   `json:"store_history"`
}

// ExecuteReply is ExecuteRequest's response.
type ExecuteReply struct {
	Status         string `json:"status"` // "ok" | "error"
	ExecutionCount int    `json:"execution_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// InspectRequest asks for introspection info on an expression at a cursor
// position.
type InspectRequest struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

// InspectReply returns the introspection data found, if any.
type InspectReply struct {
	Found bool   `json:"found"`
	Data  string `json:"data,omitempty"`
}

// CompleteRequest asks for completion candidates at a cursor position.
type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

// CompleteReply lists completion candidates and the range they'd replace.
type CompleteReply struct {
	Matches     []string `json:"matches"`
	CursorStart int      `json:"cursor_start"`
	CursorEnd   int       `json:"cursor_end"`
}

// HistoryRequest asks for a range of prior execution history.
type HistoryRequest struct {
	Output bool `json:"output"`
	Raw    bool `json:"raw"`
	Start  int  `json:"start"`
	Stop   int  `json:"stop"`
}

// HistoryReply is HistoryRequest's response: one entry per executed cell.
type HistoryReply struct {
	History []HistoryEntry `json:"history"`
}

// HistoryEntry is one executed-cell record.
type HistoryEntry struct {
	ExecutionCount int    `json:"execution_count"`
	Code           string `json:"code"`
	Output         string `json:"output,omitempty"`
}

// IsCompleteRequest asks whether a code fragment is a syntactically
// complete statement, for REPL line-continuation prompts.
type IsCompleteRequest struct {
	Code string `json:"code"`
}

// IsCompleteReply reports completeness, plus the indent to use if not.
type IsCompleteReply struct {
	Status string `json:"status"` // "complete" | "incomplete" | "invalid" | "unknown"
	Indent string `json:"indent,omitempty"`
}

// ConnectRequest asks for the ports/transport info of a running kernel.
type ConnectRequest struct{}

// ConnectReply returns the channel ports a client should dial.
type ConnectReply struct {
	ShellPort   int `json:"shell_port"`
	IOPubPort   int `json:"iopub_port"`
	StdinPort   int `json:"stdin_port"`
	ControlPort int `json:"control_port"`
	HBPort      int `json:"hb_port"`
}

// CommInfoRequest asks which comms (custom widget channels) are open.
type CommInfoRequest struct {
	TargetName string `json:"target_name,omitempty"`
}

// CommInfoReply lists open comm ids and their target names.
type CommInfoReply struct {
	Comms map[string]string `json:"comms"`
}

// KernelInfoRequest asks for the kernel's identity and capabilities.
type KernelInfoRequest struct{}

// KernelInfoReply is the kernel's full identity payload.
type KernelInfoReply struct {
	ProtocolVersion      string            `json:"protocol_version"`
	Implementation       string            `json:"implementation"`
	ImplementationVersion string           `json:"implementation_version"`
	LanguageInfo         LanguageInfo      `json:"language_info"`
	Banner               string            `json:"banner"`
	Debugger             bool              `json:"debugger"`
	HelpLinks            []HelpLink        `json:"help_links"`
}

// LanguageInfo describes the scripting language(s) this kernel executes.
type LanguageInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	MimeType      string `json:"mimetype"`
	FileExtension string `json:"file_extension"`
}

// HelpLink is one entry of KernelInfoReply's help_links list.
type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ShutdownRequest asks the kernel to terminate, optionally for a restart.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// ShutdownReply acknowledges a ShutdownRequest.
type ShutdownReply struct {
	Restart bool `json:"restart"`
}

// InterruptRequest asks the kernel to interrupt the currently running
// execution — carried on Control, not Shell.
type InterruptRequest struct{}

// InterruptReply acknowledges an InterruptRequest.
type InterruptReply struct{}

// ErrorReply is the uniform error shape for any processor that can't
// service a request: unknown request types return Error{message, details?}.
// Nothing else leaks.
type ErrorReply struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}
