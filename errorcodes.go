package melsec

import (
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrorCategory buckets an end code by the phase of processing it was
// raised in, grounded on error_codes.rs's ErrorCategory enum.
type ErrorCategory byte

const (
	ErrCategoryUnknown ErrorCategory = iota
	ErrCategorySuccess
	ErrCategoryAddressing
	ErrCategoryDataFormat
	ErrCategoryExecutionMode
	ErrCategoryBufferRange
	ErrCategoryNetwork
	ErrCategoryTransport
	ErrCategoryICMP
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategorySuccess:
		return "success"
	case ErrCategoryAddressing:
		return "addressing"
	case ErrCategoryDataFormat:
		return "data_format"
	case ErrCategoryExecutionMode:
		return "execution_mode"
	case ErrCategoryBufferRange:
		return "buffer_range"
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryICMP:
		return "icmp"
	}
	return "unknown"
}

func parseErrorCategory(s string) ErrorCategory {
	switch strings.ToLower(s) {
	case "success":
		return ErrCategorySuccess
	case "addressing":
		return ErrCategoryAddressing
	case "data_format":
		return ErrCategoryDataFormat
	case "execution_mode":
		return ErrCategoryExecutionMode
	case "buffer_range":
		return ErrCategoryBufferRange
	case "network":
		return ErrCategoryNetwork
	case "transport":
		return ErrCategoryTransport
	case "icmp":
		return ErrCategoryICMP
	}
	return ErrCategoryUnknown
}

// ErrorEntry is one row of the error code catalog.
type ErrorEntry struct {
	Code        uint16
	Name        string
	Description string
	Category    ErrorCategory
}

type errorCodeDoc struct {
	Codes []errorCodeRecord `yaml:"codes"`
}

type errorCodeRecord struct {
	Code        uint32 `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

// ErrorCatalog is the parsed, mergeable end-code lookup table. Unlike the
// Command Registry and Device Catalog, it supports RegisterOrMerge:
// successive loads layer new entries over the existing set instead of
// rejecting re-initialization (§3 Lifecycles, grounded on error_codes.rs's
// register_or_merge).
type ErrorCatalog struct {
	mu      sync.RWMutex
	entries map[uint16]ErrorEntry
}

func newErrorCatalog() *ErrorCatalog {
	return &ErrorCatalog{entries: make(map[uint16]ErrorEntry)}
}

func parseErrorCodeDoc(records []errorCodeRecord) (*ErrorCatalog, error) {
	cat := newErrorCatalog()
	for _, r := range records {
		cat.entries[uint16(r.Code)] = ErrorEntry{
			Code:        uint16(r.Code),
			Name:        r.Name,
			Description: r.Description,
			Category:    parseErrorCategory(r.Category),
		}
	}
	return cat, nil
}

func parseErrorCodeYAML(data []byte) (*ErrorCatalog, error) {
	var doc errorCodeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, wrapErr(KindProtocol, err, "parsing error code document")
	}
	return parseErrorCodeDoc(doc.Codes)
}

// Lookup returns the entry for code, if registered.
func (c *ErrorCatalog) Lookup(code uint16) (ErrorEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

// Merge layers other's entries over c's, overwriting any code both define.
func (c *ErrorCatalog) Merge(other *ErrorCatalog) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for code, e := range other.entries {
		c.entries[code] = e
	}
}

var (
	globalErrorCatalogMu sync.RWMutex
	globalErrorCatalog   *ErrorCatalog
)

// RegisterOrMergeErrorCatalog installs cat as the global catalog, merging
// into any catalog already registered rather than rejecting the call. This
// is the one registry in the package that tolerates re-initialization.
func RegisterOrMergeErrorCatalog(cat *ErrorCatalog) {
	globalErrorCatalogMu.Lock()
	defer globalErrorCatalogMu.Unlock()
	if globalErrorCatalog == nil {
		globalErrorCatalog = cat
		return
	}
	globalErrorCatalog.Merge(cat)
}

func globalErrors() *ErrorCatalog {
	globalErrorCatalogMu.RLock()
	defer globalErrorCatalogMu.RUnlock()
	return globalErrorCatalog
}

// ErrorCodeName returns the registered name for code, if any.
func ErrorCodeName(code uint16) (string, bool) {
	cat := globalErrors()
	if cat == nil {
		return "", false
	}
	e, ok := cat.Lookup(code)
	return e.Name, ok
}

// ErrorCodeDescription returns the registered description for code, if any.
func ErrorCodeDescription(code uint16) (string, bool) {
	cat := globalErrors()
	if cat == nil {
		return "", false
	}
	e, ok := cat.Lookup(code)
	return e.Description, ok
}

// ErrorCodeCategory classifies code, falling back to range-based rules
// (grounded on error_codes.rs's is_network_error/is_transport_error/
// is_icmp_error/is_buffer_error helpers) when the code isn't registered.
func ErrorCodeCategory(code uint16) ErrorCategory {
	if cat := globalErrors(); cat != nil {
		if e, ok := cat.Lookup(code); ok && e.Category != ErrCategoryUnknown {
			return e.Category
		}
	}
	switch {
	case code == 0x0000:
		return ErrCategorySuccess
	case IsICMPError(code):
		return ErrCategoryICMP
	case IsTransportError(code):
		return ErrCategoryTransport
	case IsNetworkError(code):
		return ErrCategoryNetwork
	case IsBufferError(code):
		return ErrCategoryBufferRange
	}
	return ErrCategoryUnknown
}

// IsNetworkError reports whether code falls in the 0xC000-0xC0FF network
// error range.
func IsNetworkError(code uint16) bool { return code >= 0xC000 && code <= 0xC0FF }

// IsTransportError reports whether code falls in the 0xC030-0xC04F
// TCP/UDP transport error range.
func IsTransportError(code uint16) bool { return code >= 0xC030 && code <= 0xC04F }

// IsICMPError reports whether code falls in the 0xC044-0xC048 ICMP error
// range.
func IsICMPError(code uint16) bool { return code >= 0xC044 && code <= 0xC048 }

// IsBufferError reports whether code falls in the 0x00A0-0xFFFF buffer
// range error band.
func IsBufferError(code uint16) bool { return code >= 0x00A0 }
