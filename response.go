package melsec

// ParsedResponse holds the decoded output of a response, keyed by the
// response_format entry name that produced it (§4.5).
type ParsedResponse struct {
	Words map[string][]uint16
	Bits  map[string][]bool
	Raw   map[string][]byte
}

func newParsedResponse() *ParsedResponse {
	return &ParsedResponse{
		Words: make(map[string][]uint16),
		Bits:  make(map[string][]bool),
		Raw:   make(map[string][]byte),
	}
}

// ParseResponse decodes spec's response_format entries out of body in
// order. counts and devices are parallel to spec.ResponseFields and supply
// the point count and target device each entry needs to know its byte
// length and category (the wire itself carries no explicit per-entry
// length prefix; that information comes from the read request that
// elicited this response). Entries with a directive that consumes the
// remainder of the buffer (ascii_hex) ignore their count/device.
func ParseResponse(spec CommandSpec, body []byte, counts []int, devices []Device) (*ParsedResponse, error) {
	out := newParsedResponse()
	offset := 0
	for i, entry := range spec.ResponseFields {
		var count int
		var dev Device
		if i < len(counts) {
			count = counts[i]
		}
		if i < len(devices) {
			dev = devices[i]
		}

		switch entry.Directive {
		case DirectiveBlockWords:
			need := count * 2
			if offset+need > len(body) {
				return nil, newErr(KindProtocol, "response entry %q: need %d bytes, have %d", entry.Name, need, len(body)-offset)
			}
			chunk := body[offset : offset+need]
			words := make([]uint16, count)
			for j := 0; j < count; j++ {
				words[j] = decodeWord(chunk[j*2:j*2+2], entry.LE)
			}
			out.Words[entry.Name] = words
			if dev.Category == CategoryBit && count == 1 {
				wbuf := make([]byte, 2)
				if entry.LE {
					wbuf[0], wbuf[1] = chunk[0], chunk[1]
				} else {
					wbuf[0], wbuf[1] = chunk[1], chunk[0]
				}
				out.Bits["bit_blocks"] = decodePackedBits(wbuf, 16, bitsLSB)
			}
			offset += need

		case DirectiveBlockBitsPacked:
			need := packedByteCount(count)
			if offset+need > len(body) {
				return nil, newErr(KindProtocol, "response entry %q: need %d bytes, have %d", entry.Name, need, len(body)-offset)
			}
			order := bitsLSB
			if !entry.LSBFirst {
				order = bitsMSB
			}
			out.Bits[entry.Name] = decodePackedBits(body[offset:offset+need], count, order)
			offset += need

		case DirectiveBlockNibbles:
			need := nibbleByteCount(count)
			if offset+need > len(body) {
				return nil, newErr(KindProtocol, "response entry %q: need %d bytes, have %d", entry.Name, need, len(body)-offset)
			}
			order := nibbleHigh
			if !entry.HighFirst {
				order = nibbleLow
			}
			out.Bits[entry.Name] = decodeNibbles(body[offset:offset+need], count, order)
			offset += need

		case DirectiveAsciiHex:
			rem, err := validateAsciiHexString(body[offset:])
			if err != nil {
				return nil, wrapErr(KindProtocol, err, "response entry %q: invalid ascii_hex payload", entry.Name)
			}
			out.Raw[entry.Name] = rem
			offset = len(body)
		}
	}
	return out, nil
}

func decodeWord(b []byte, le bool) uint16 {
	if le {
		return uint16(b[0]) | uint16(b[1])<<8
	}
	return uint16(b[1]) | uint16(b[0])<<8
}
