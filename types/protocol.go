// Package types defines the wire vocabulary of the device-to-cloud polling
// protocol: protocol generations, request kinds and transfer results.
//
// Every enum here is backed by a fixed-size lookup table indexed by the enum
// value. Adding a value grows the table, and the table tests fail until the
// new entry carries its wire literal.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// ProtocolVersion is a protocol generation. Generations are strictly
// additive: each one understands every request and response kind of its
// predecessor.
type ProtocolVersion int

// Protocol generations in ascending order.
const (
	ProtocolV4 ProtocolVersion = iota
	// ProtocolV5 adds the serial number in PING content.
	ProtocolV5
	// ProtocolV6 adds the firmware update lifecycle and asynchronous task
	// abort.
	ProtocolV6

	protocolVersionCount
)

// LatestProtocol is the newest protocol generation this module speaks.
const LatestProtocol = ProtocolV6

var protocolWire = [protocolVersionCount]string{
	ProtocolV4: "v4",
	ProtocolV5: "v5",
	ProtocolV6: "v6",
}

// Valid reports whether v is a known protocol generation.
func (v ProtocolVersion) Valid() bool {
	return v >= 0 && v < protocolVersionCount
}

// Wire returns the query parameter value for v ("v4", "v5", "v6").
func (v ProtocolVersion) Wire() string {
	if !v.Valid() {
		return ""
	}
	return protocolWire[v]
}

func (v ProtocolVersion) String() string {
	if !v.Valid() {
		return fmt.Sprintf("ProtocolVersion(%d)", int(v))
	}
	return protocolWire[v]
}

// Supports reports whether request kind k exists in protocol generation v.
func (v ProtocolVersion) Supports(k RequestKind) bool {
	return v.Valid() && k.Valid() && requestSince[k] <= v
}

// MarshalText encodes v as its wire tag.
func (v ProtocolVersion) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid protocol version %d", int(v))
	}
	return []byte(protocolWire[v]), nil
}

// UnmarshalText decodes a wire tag.
func (v *ProtocolVersion) UnmarshalText(b []byte) error {
	parsed, err := ParseProtocolVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseProtocolVersion parses a wire tag. Matching is case-insensitive.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	for v, tag := range protocolWire {
		if strings.EqualFold(s, tag) {
			return ProtocolVersion(v), nil
		}
	}
	return 0, fmt.Errorf("invalid protocol version: %q (must be v4, v5, or v6)", s)
}

// RequestKind is the kind of an outbound device request, sent as the F
// query parameter.
type RequestKind int

// Request kinds.
const (
	RequestPing RequestKind = iota
	RequestAttention
	RequestUpload
	RequestReturnError
	RequestReturnSCPI
	RequestReturnScript
	RequestReturnList
	RequestReturnFile

	// Firmware update lifecycle, since v5.
	RequestAckFirmwareUpdate
	RequestProgressFirmwareUpdate
	RequestReturnFirmwareUpdate

	// Since v6.
	RequestReturnAbortAsyncTask

	requestKindCount
)

type requestNames struct {
	name string
	wire string
}

var requestTable = [requestKindCount]requestNames{
	RequestPing:                   {"PING", "PING"},
	RequestAttention:              {"ATTENTION", "ATTN"},
	RequestUpload:                 {"UPLOAD", "UPLOAD"},
	RequestReturnError:            {"RETURN_ERROR", "RETURN_ERROR"},
	RequestReturnSCPI:             {"RETURN_SCPI", "RETURN_SCPI"},
	RequestReturnScript:           {"RETURN_SCRIPT", "RETURN_BASH"},
	RequestReturnList:             {"RETURN_LIST", "RETURN_LIST"},
	RequestReturnFile:             {"RETURN_FILE", "RETURN_FILE"},
	RequestAckFirmwareUpdate:      {"ACKNOWLEDGMENT_FIRMWARE_UPDATE", "ACKNOWLEDGMENT_FIRMWARE_UPDATE"},
	RequestProgressFirmwareUpdate: {"PROGRESS_FIRMWARE_UPDATE", "PROGRESS_FIRMWARE_UPDATE"},
	RequestReturnFirmwareUpdate:   {"RETURN_FIRMWARE_UPDATE", "RETURN_FIRMWARE_UPDATE"},
	RequestReturnAbortAsyncTask:   {"RETURN_ABORT_ASYNCHRONOUS_TASK", "RETURN_ABORT_ASYNCHRONOUS_TASK"},
}

// requestSince is the first protocol generation that carries each kind.
var requestSince = [requestKindCount]ProtocolVersion{
	RequestPing:                   ProtocolV4,
	RequestAttention:              ProtocolV4,
	RequestUpload:                 ProtocolV4,
	RequestReturnError:            ProtocolV4,
	RequestReturnSCPI:             ProtocolV4,
	RequestReturnScript:           ProtocolV4,
	RequestReturnList:             ProtocolV4,
	RequestReturnFile:             ProtocolV4,
	RequestAckFirmwareUpdate:      ProtocolV6,
	RequestProgressFirmwareUpdate: ProtocolV6,
	RequestReturnFirmwareUpdate:   ProtocolV6,
	RequestReturnAbortAsyncTask:   ProtocolV6,
}

// RequestKinds returns every request kind in declaration order.
func RequestKinds() []RequestKind {
	kinds := make([]RequestKind, 0, requestKindCount)
	for k := range requestKindCount {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is a known request kind.
func (k RequestKind) Valid() bool {
	return k >= 0 && k < requestKindCount
}

// Wire returns the F query parameter literal for k.
func (k RequestKind) Wire() string {
	if !k.Valid() {
		return ""
	}
	return requestTable[k].wire
}

// Since returns the first protocol generation that carries k.
func (k RequestKind) Since() ProtocolVersion {
	if !k.Valid() {
		return protocolVersionCount
	}
	return requestSince[k]
}

func (k RequestKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
	return requestTable[k].name
}

// MarshalText encodes k as its name.
func (k RequestKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid request kind %d", int(k))
	}
	return []byte(requestTable[k].name), nil
}

// UnmarshalText decodes a request kind name or wire literal.
func (k *RequestKind) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseRequestKind accepts either the kind name ("RETURN_SCRIPT") or its
// wire literal ("RETURN_BASH"). Matching is case-insensitive and '-' is
// accepted in place of '_'.
func ParseRequestKind(s string) (RequestKind, error) {
	norm := strings.ReplaceAll(s, "-", "_")
	for k, n := range requestTable {
		if strings.EqualFold(norm, n.name) || strings.EqualFold(norm, n.wire) {
			return RequestKind(k), nil
		}
	}
	return 0, fmt.Errorf("invalid request kind: %q", s)
}
