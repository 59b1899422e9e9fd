package types

import "fmt"

// TransferResult is the terminal outcome of an entry transfer.
type TransferResult int

// Transfer results.
const (
	ResultNone TransferResult = iota
	ResultRunning

	// Transport failures.
	ResultAsyncCanceled
	ResultAsyncTimeout
	ResultUnknownError
	ResultCurlError

	// Protocol failure: unexpected status or content type.
	ResultUnknownResponse

	// Server acknowledged, no task pending.
	ResultReturnOK

	// Task dispatches.
	ResultTaskRequestList
	ResultTaskRequestFile
	ResultTaskExecuteScript
	ResultTaskSCPIDeviceManager
	ResultTaskSCPIApplication
	ResultTaskFirmwareUpdate
	ResultAbortAsyncTask

	transferResultCount
)

// Category groups transfer results by failure class.
type Category string

// Result categories.
const (
	CategoryPending   Category = "pending"
	CategoryTransport Category = "transport"
	CategoryProtocol  Category = "protocol"
	CategoryOK        Category = "ok"
	CategoryTask      Category = "task"
)

type resultInfo struct {
	name     string
	category Category
}

var resultTable = [transferResultCount]resultInfo{
	ResultNone:                  {"NONE", CategoryPending},
	ResultRunning:               {"RUNNING", CategoryPending},
	ResultAsyncCanceled:         {"ASYNC_CANCELED", CategoryTransport},
	ResultAsyncTimeout:          {"ASYNC_TIMEOUT", CategoryTransport},
	ResultUnknownError:          {"UNKNOWN_ERROR", CategoryTransport},
	ResultCurlError:             {"CURL_ERROR", CategoryTransport},
	ResultUnknownResponse:       {"UNKNOWN_RESPONSE", CategoryProtocol},
	ResultReturnOK:              {"RETURN_OK", CategoryOK},
	ResultTaskRequestList:       {"TASK_REQUEST_LIST", CategoryTask},
	ResultTaskRequestFile:       {"TASK_REQUEST_FILE", CategoryTask},
	ResultTaskExecuteScript:     {"TASK_EXECUTE_SCRIPT", CategoryTask},
	ResultTaskSCPIDeviceManager: {"TASK_SCPI_DEVICE_MANAGER", CategoryTask},
	ResultTaskSCPIApplication:   {"TASK_SCPI_APPLICATION", CategoryTask},
	ResultTaskFirmwareUpdate:    {"TASK_FIRMWARE_UPDATE", CategoryTask},
	ResultAbortAsyncTask:        {"ABORT_ASYNCHRONOUS_TASK", CategoryTask},
}

// taskContentTypes maps the 200 response Content-Type to the task it
// dispatches. Matching is exact.
var taskContentTypes = map[string]TransferResult{
	"application/om-request-list":    ResultTaskRequestList,
	"application/om-request-file":    ResultTaskRequestFile,
	"application/om-bash":            ResultTaskExecuteScript,
	"application/om-scpi-dev":        ResultTaskSCPIDeviceManager,
	"application/om-scpi-app":        ResultTaskSCPIApplication,
	"application/om-firmware-update": ResultTaskFirmwareUpdate,
}

// TaskForContentType returns the task dispatched by a 200 response with the
// given Content-Type. ok is false for any other value, including "".
func TaskForContentType(contentType string) (result TransferResult, ok bool) {
	result, ok = taskContentTypes[contentType]
	return result, ok
}

// TaskContentTypes returns a copy of the Content-Type to task table.
func TaskContentTypes() map[string]TransferResult {
	out := make(map[string]TransferResult, len(taskContentTypes))
	for ct, r := range taskContentTypes {
		out[ct] = r
	}
	return out
}

// TransferResults returns every transfer result in declaration order.
func TransferResults() []TransferResult {
	results := make([]TransferResult, 0, transferResultCount)
	for r := range transferResultCount {
		results = append(results, r)
	}
	return results
}

// Valid reports whether r is a known transfer result.
func (r TransferResult) Valid() bool {
	return r >= 0 && r < transferResultCount
}

func (r TransferResult) String() string {
	if !r.Valid() {
		return fmt.Sprintf("TransferResult(%d)", int(r))
	}
	return resultTable[r].name
}

// Category returns the failure class of r.
func (r TransferResult) Category() Category {
	if !r.Valid() {
		return CategoryPending
	}
	return resultTable[r].category
}

// IsTask reports whether the server dispatched a task.
func (r TransferResult) IsTask() bool {
	return r.Category() == CategoryTask
}

// IsFinal reports whether r is a terminal outcome.
func (r TransferResult) IsFinal() bool {
	return r.Valid() && r.Category() != CategoryPending
}

// MarshalText encodes r as its name.
func (r TransferResult) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid transfer result %d", int(r))
	}
	return []byte(resultTable[r].name), nil
}

// UnmarshalText decodes a transfer result name.
func (r *TransferResult) UnmarshalText(b []byte) error {
	parsed, err := ParseTransferResult(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseTransferResult parses a result name such as "RETURN_OK".
func ParseTransferResult(s string) (TransferResult, error) {
	for r, info := range resultTable {
		if info.name == s {
			return TransferResult(r), nil
		}
	}
	return 0, fmt.Errorf("invalid transfer result: %q", s)
}
