package melsec

import (
	"encoding/binary"
	"sync/atomic"
)

// Dialect selects the frame subheader and header layout used on the wire.
type Dialect byte

const (
	// DialectExtended is the MC4E ("3E frame" with extended subheader)
	// dialect: subheader 0x5400 request / 0xD400 response, carrying an
	// access route ahead of the command body.
	DialectExtended Dialect = iota
	// DialectCompact is the MC3E dialect: subheader 0x5000 request /
	// 0xD000 response, same access route layout as Extended.
	DialectCompact
	// DialectBare is the legacy MC3E variant with no subheader at all.
	// Frame has no subheader field, so a decoded Bare frame is told apart
	// from the others only by its Dialect.
	DialectBare
)

func (d Dialect) String() string {
	switch d {
	case DialectExtended:
		return "extended"
	case DialectCompact:
		return "compact"
	case DialectBare:
		return "bare"
	}
	return "unknown"
}

const (
	subheaderExtendedReq = 0x5400
	subheaderExtendedRes = 0xD400
	subheaderCompactReq  = 0x5000
	subheaderCompactRes  = 0xD000
)

// AccessRoute is the network/PC/IO/station addressing quadruple every
// Extended or Compact frame carries ahead of its command body (§3).
type AccessRoute struct {
	Network     byte
	PC          byte
	IOModule    uint16
	StationNo   byte
}

// DefaultAccessRoute is the "talk to the CPU of the PLC I'm directly
// connected to" route used when a Target doesn't override it.
func DefaultAccessRoute() AccessRoute {
	return AccessRoute{Network: 0x00, PC: 0xFF, IOModule: 0x03FF, StationNo: 0x00}
}

func (r AccessRoute) encode(buf []byte) {
	buf[0] = r.Network
	buf[1] = r.PC
	binary.LittleEndian.PutUint16(buf[2:4], r.IOModule)
	buf[4] = r.StationNo
}

func decodeAccessRoute(buf []byte) AccessRoute {
	return AccessRoute{
		Network:   buf[0],
		PC:        buf[1],
		IOModule:  binary.LittleEndian.Uint16(buf[2:4]),
		StationNo: buf[4],
	}
}

// serial is the process-wide atomic request-serial counter (§5): it starts
// at 1, never emits 0, and wraps 0xFFFF back to 1. Grounded on framer.go's
// atomic.AddUint32 transaction-id idiom, generalized to the MC 16-bit
// serial-number field and its wrap rule.
var serial uint32

func nextSerial() uint16 {
	for {
		n := atomic.AddUint32(&serial, 1)
		s := uint16(n)
		if s != 0 {
			return s
		}
		// the increment landed exactly on the wrap point; restart the
		// counter at 1 so we never hand out 0.
		if atomic.CompareAndSwapUint32(&serial, n, 1) {
			return 1
		}
	}
}

// Frame is a decoded MC frame: dialect, access route, serial number, and
// command body (monitoring timer plus payload for requests; end code plus
// payload for responses).
type Frame struct {
	Dialect     Dialect
	AccessRoute AccessRoute
	Serial      uint16
	MonitorTime uint16 // request-only, in 250ms units (§9)
	EndCode     uint16 // response-only
	Body        []byte
}

// AssembleExtendedRequest builds a complete MC4E request frame.
func AssembleExtendedRequest(route AccessRoute, serialNo, monitorTime uint16, body []byte) []byte {
	dataLen := uint16(2 /*monitor*/ + len(body))
	buf := make([]byte, 0, 4+11+len(body))
	buf = appendUint16BE(buf, subheaderExtendedReq)
	buf = appendUint16LE(buf, serialNo)
	buf = append(buf, 0x00, 0x00) // reserved
	routeBuf := make([]byte, 5)
	route.encode(routeBuf)
	buf = append(buf, routeBuf...)
	buf = appendUint16LE(buf, dataLen)
	buf = appendUint16BE(buf, monitorTime)
	buf = append(buf, body...)
	return buf
}

// AssembleCompactRequest builds a complete MC3E request frame. Compact
// frames carry no serial number field.
func AssembleCompactRequest(route AccessRoute, monitorTime uint16, body []byte) []byte {
	dataLen := uint16(2 /*monitor*/ + len(body))
	buf := make([]byte, 0, 2+5+2+len(body))
	buf = appendUint16BE(buf, subheaderCompactReq)
	routeBuf := make([]byte, 5)
	route.encode(routeBuf)
	buf = append(buf, routeBuf...)
	buf = appendUint16LE(buf, dataLen)
	buf = appendUint16LE(buf, monitorTime)
	buf = append(buf, body...)
	return buf
}

func route2Bytes() []byte { return make([]byte, 5) }

// AssembleExtendedResponse builds a complete MC4E response frame.
func AssembleExtendedResponse(route AccessRoute, serialNo uint16, endCode uint16, body []byte) []byte {
	dataLen := uint16(2 /*end code*/ + len(body))
	buf := make([]byte, 0, 13+len(body))
	buf = appendUint16BE(buf, subheaderExtendedRes)
	buf = appendUint16LE(buf, serialNo)
	buf = append(buf, 0x00, 0x00) // reserved
	routeBuf := make([]byte, 5)
	route.encode(routeBuf)
	buf = append(buf, routeBuf...)
	buf = appendUint16LE(buf, dataLen)
	buf = appendUint16LE(buf, endCode)
	buf = append(buf, body...)
	return buf
}

// AssembleCompactResponse builds a complete MC3E response frame.
func AssembleCompactResponse(route AccessRoute, endCode uint16, body []byte) []byte {
	dataLen := uint16(2 /*end code*/ + len(body))
	buf := make([]byte, 0, 9+len(body))
	buf = appendUint16BE(buf, subheaderCompactRes)
	routeBuf := make([]byte, 5)
	route.encode(routeBuf)
	buf = append(buf, routeBuf...)
	buf = appendUint16LE(buf, dataLen)
	buf = appendUint16LE(buf, endCode)
	buf = append(buf, body...)
	return buf
}

// AssembleBareResponse builds a legacy MC3E response frame with no
// subheader, matching the wire shape DetectFrame/ParseFrame fall back to
// for anything that isn't Extended or Compact.
func AssembleBareResponse(route AccessRoute, endCode uint16, body []byte) []byte {
	dataLen := uint16(2 /*end code*/ + len(body))
	buf := make([]byte, 0, 9+len(body))
	routeBuf := make([]byte, 5)
	route.encode(routeBuf)
	buf = append(buf, routeBuf...)
	buf = appendUint16LE(buf, dataLen)
	buf = appendUint16LE(buf, endCode)
	buf = append(buf, body...)
	return buf
}

const (
	subheaderExtendedReqTag = subheaderExtendedReq
	subheaderCompactReqTag  = subheaderCompactReq
)

// DetectRequestFrame is DetectFrame's mirror image for the server side: it
// recognizes the Extended/Compact *request* subheaders (0x5400/0x5000)
// instead of the response ones, falling back to the same Bare shape
// (route + data_len + monitor_time + body, no subheader) otherwise.
func DetectRequestFrame(buf []byte) (need int, dialect Dialect, err error) {
	if len(buf) < 2 {
		return 0, 0, nil
	}
	sh := binary.BigEndian.Uint16(buf[:2])
	switch sh {
	case subheaderExtendedReqTag:
		if len(buf) < 13 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[11:13])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "extended request data_len %d is below the minimum of 2", dataLen)
		}
		return 13 + int(dataLen), DialectExtended, nil
	case subheaderCompactReqTag:
		if len(buf) < 9 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[7:9])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "compact request data_len %d is below the minimum of 2", dataLen)
		}
		return 9 + int(dataLen), DialectCompact, nil
	default:
		if len(buf) < 7 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[5:7])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "bare request data_len %d is below the minimum of 2", dataLen)
		}
		return 7 + int(dataLen), DialectBare, nil
	}
}

// ParseRequestFrame decodes exactly one request frame from buf, the mirror
// image of ParseFrame for the server side: it reads a monitoring timer
// instead of an end code ahead of the body.
func ParseRequestFrame(buf []byte, dialect Dialect) (Frame, error) {
	switch dialect {
	case DialectExtended:
		if len(buf) < 15 {
			return Frame{}, newErr(KindProtocol, "extended request shorter than fixed header")
		}
		serialNo := binary.LittleEndian.Uint16(buf[2:4])
		route := decodeAccessRoute(buf[6:11])
		monitor := binary.BigEndian.Uint16(buf[13:15])
		return Frame{Dialect: dialect, AccessRoute: route, Serial: serialNo, MonitorTime: monitor, Body: buf[15:]}, nil
	case DialectCompact:
		if len(buf) < 11 {
			return Frame{}, newErr(KindProtocol, "compact request shorter than fixed header")
		}
		route := decodeAccessRoute(buf[2:7])
		monitor := binary.LittleEndian.Uint16(buf[9:11])
		return Frame{Dialect: dialect, AccessRoute: route, MonitorTime: monitor, Body: buf[11:]}, nil
	case DialectBare:
		if len(buf) < 9 {
			return Frame{}, newErr(KindProtocol, "bare request shorter than fixed header")
		}
		route := decodeAccessRoute(buf[0:5])
		monitor := binary.LittleEndian.Uint16(buf[7:9])
		return Frame{Dialect: dialect, AccessRoute: route, MonitorTime: monitor, Body: buf[9:]}, nil
	}
	return Frame{}, newErr(KindProtocol, "unknown frame dialect %v", dialect)
}

func appendUint16BE(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint16LE(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

// DetectFrame implements the three-tier frame-boundary detection of §4.6:
// given everything read so far, it reports how many bytes the next full
// frame needs, or 0 if buf doesn't yet contain enough to tell.
//
// Extended and Compact responses are distinguished by their 2-byte
// subheader; anything else is treated as a Bare response, which carries no
// subheader and no serial: its route is read from its first five bytes and
// its decoded Serial is 0.
func DetectFrame(buf []byte) (need int, dialect Dialect, err error) {
	if len(buf) < 2 {
		return 0, 0, nil
	}
	sh := binary.BigEndian.Uint16(buf[:2])
	switch sh {
	case subheaderExtendedRes:
		if len(buf) < 13 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[11:13])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "extended frame data_len %d is below the minimum of 2", dataLen)
		}
		return 13 + int(dataLen), DialectExtended, nil
	case subheaderCompactRes:
		if len(buf) < 9 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[7:9])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "compact frame data_len %d is below the minimum of 2", dataLen)
		}
		return 9 + int(dataLen), DialectCompact, nil
	default:
		// Bare MC3E: route(5) + data_len(2) + end_code(2) + payload.
		if len(buf) < 7 {
			return 0, 0, nil
		}
		dataLen := binary.LittleEndian.Uint16(buf[5:7])
		if dataLen < 2 {
			return 0, 0, newErr(KindProtocol, "bare frame data_len %d is below the minimum of 2", dataLen)
		}
		return 7 + int(dataLen), DialectBare, nil
	}
}

// ParseFrame decodes exactly one response frame from buf, which must hold
// at least the number of bytes DetectFrame reported as needed. A truncated
// frame (fewer payload bytes than data_len implies) is tolerated only when
// the end code is 0x0000, matching devices that close the connection
// immediately after a successful response without flushing the tail.
func ParseFrame(buf []byte, dialect Dialect) (Frame, error) {
	switch dialect {
	case DialectExtended:
		if len(buf) < 15 {
			return Frame{}, newErr(KindProtocol, "extended frame shorter than fixed header")
		}
		serialNo := binary.LittleEndian.Uint16(buf[2:4])
		route := decodeAccessRoute(buf[6:11])
		dataLen := binary.LittleEndian.Uint16(buf[11:13])
		endCode := binary.LittleEndian.Uint16(buf[13:15])
		payload := buf[15:]
		if want := int(dataLen) - 2; want > len(payload) {
			if endCode != 0x0000 {
				return Frame{}, newErr(KindProtocol, "truncated extended frame: want %d payload bytes, have %d", want, len(payload))
			}
			payload = payload[:0]
		} else {
			payload = payload[:want]
		}
		return Frame{Dialect: dialect, AccessRoute: route, Serial: serialNo, EndCode: endCode, Body: payload}, nil

	case DialectCompact:
		if len(buf) < 11 {
			return Frame{}, newErr(KindProtocol, "compact frame shorter than fixed header")
		}
		route := decodeAccessRoute(buf[2:7])
		dataLen := binary.LittleEndian.Uint16(buf[7:9])
		endCode := binary.LittleEndian.Uint16(buf[9:11])
		payload := buf[11:]
		if want := int(dataLen) - 2; want > len(payload) {
			if endCode != 0x0000 {
				return Frame{}, newErr(KindProtocol, "truncated compact frame: want %d payload bytes, have %d", want, len(payload))
			}
			payload = payload[:0]
		} else {
			payload = payload[:want]
		}
		return Frame{Dialect: dialect, AccessRoute: route, EndCode: endCode, Body: payload}, nil

	case DialectBare:
		if len(buf) < 9 {
			return Frame{}, newErr(KindProtocol, "bare frame shorter than fixed header")
		}
		route := decodeAccessRoute(buf[0:5])
		dataLen := binary.LittleEndian.Uint16(buf[5:7])
		endCode := binary.LittleEndian.Uint16(buf[7:9])
		payload := buf[9:]
		if want := int(dataLen) - 2; want > len(payload) {
			if endCode != 0x0000 {
				return Frame{}, newErr(KindProtocol, "truncated bare frame: want %d payload bytes, have %d", want, len(payload))
			}
			payload = payload[:0]
		} else {
			payload = payload[:want]
		}
		// Bare frames carry no serial; the caller matches the single
		// outstanding request instead.
		return Frame{Dialect: dialect, AccessRoute: route, EndCode: endCode, Body: payload}, nil
	}
	return Frame{}, newErr(KindProtocol, "unknown frame dialect %v", dialect)
}
