package ipc

import (
	json "github.com/goccy/go-json"
)

// Version is the JSON-RPC protocol version spoken by the application.
const Version = "2.0"

// Methods exposed by the application's IPC server.
const (
	MethodGetDescriptor      = "data/get/descriptor"
	MethodGetDescriptors     = "data/get/descriptors"
	MethodCalculate          = "result/calculate"
	MethodSimulate           = "result/simulate"
	MethodState              = "result/state"
	MethodImpactCategories   = "result/impact-categories"
	MethodTechFlows          = "result/tech-flows"
	MethodTotalImpactValueOf = "result/total-impact-value-of"
	MethodDispose            = "result/dispose"
)

// Request is a JSON-RPC request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// descriptorParams selects descriptors by type and, optionally, name or id.
type descriptorParams struct {
	Type string `json:"@type"`
	ID   string `json:"@id,omitempty"`
	Name string `json:"name,omitempty"`
}

// resultParams addresses a result handle.
type resultParams struct {
	ID string `json:"@id"`
}

// impactValueParams addresses one cell of the total impact matrix.
type impactValueParams struct {
	ID             string `json:"@id"`
	ImpactCategory any    `json:"impactCategory"`
	TechFlow       any    `json:"techFlow"`
}
