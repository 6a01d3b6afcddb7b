package melsec

// WordValue is one 16-bit word in a request or response payload.
type WordValue uint16

// BlockAddress names one random-access device/address pair, used by the
// read_random_words, write_random_words, write_random_bits, read_blocks,
// and write_blocks commands (§4.3).
type BlockAddress struct {
	Device Device
	Addr   uint32
	Count  int      // read_blocks / write_blocks only
	Words  []uint16 // write_random_words / write_blocks word data
	Bits   []bool   // write_random_bits / write_blocks bit data
}

// RequestParams is the builder's input: the series it targets and the
// command-specific arguments.
type RequestParams struct {
	Series Series

	// Single-address commands (read_words, write_words, read_bits,
	// write_bits).
	Device Device
	Addr   uint32
	Count  int
	Words  []uint16
	Bits   []bool

	// echo
	Payload []byte

	// Random/block commands.
	Blocks []BlockAddress
}

// deviceCodeWidth and startAddrWidth return the series-dependent wire
// widths for the two special-cased fields (§4.4): Q packs device_code into
// 1 byte and start_addr into 3 bytes; R widens both to accommodate its
// larger address space.
func deviceCodeWidth(series Series) int {
	if series == SeriesR {
		return 2
	}
	return 1
}

func startAddrWidth(series Series) int {
	if series == SeriesR {
		return 4
	}
	return 3
}

func putUintLE(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> uint(8*i))
	}
}

func putUintBE(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[n-1-i] = byte(v >> uint(8*i))
	}
}

// BuildRequest encodes a command body from a schema and parameters,
// enforcing the device-family restriction and point limits declared on
// the command, and special-casing device_code/start_addr widths by field
// name regardless of the schema's advisory width annotation (§4.4).
func BuildRequest(spec CommandSpec, p RequestParams) ([]byte, error) {
	if p.Device.Symbol != "" && !spec.DeviceFamily.Accepts(p.Device.Category) {
		return nil, newErr(KindProtocol, "command %v does not accept a %v device", spec.ID, p.Device.Category)
	}
	for _, blk := range p.Blocks {
		accepted := false
		for _, tmpl := range spec.BlockTemplates {
			if tmpl.DeviceFamily.Accepts(blk.Device.Category) {
				accepted = true
				break
			}
		}
		if !accepted {
			return nil, newErr(KindProtocol, "command %v: no block template accepts a %v device", spec.ID, blk.Device.Category)
		}
	}
	if err := checkLimits(spec, p); err != nil {
		return nil, err
	}

	sub, err := spec.Subcommand.Resolve(p.Series)
	if err != nil {
		return nil, err
	}

	var buf []byte
	for _, f := range spec.RequestFields {
		switch f.Name {
		case "command":
			buf = appendFixed(buf, uint64(spec.CommandCode), 2, f.LE)
			continue
		case "subcommand":
			buf = appendFixed(buf, uint64(sub), 2, f.LE)
			continue
		case "device_code":
			buf = appendFixed(buf, uint64(p.Device.Code), deviceCodeWidth(p.Series), true)
			continue
		case "start_addr":
			buf = appendFixed(buf, uint64(p.Addr), startAddrWidth(p.Series), true)
			continue
		case "count":
			buf = appendFixed(buf, uint64(p.Count), f.N, f.LE)
			continue
		case "length":
			if spec.ID == CmdEcho {
				n := len(p.Payload)
				if n < 1 || n > 960 {
					return nil, newErr(KindProtocol, "echo payload length %d outside [1,960]", n)
				}
			}
			buf = appendFixed(buf, uint64(len(p.Payload)), f.N, f.LE)
			continue
		case "word_block_count", "dword_block_count", "bit_block_count":
			family, err := blockFamilyForRepeatField(spec, f.Name)
			if err != nil {
				return nil, err
			}
			buf = appendFixed(buf, uint64(len(filterBlocksByFamily(p.Blocks, family))), f.N, f.LE)
			continue
		case "data":
			enc, err := encodeDataField(spec, f, p)
			if err != nil {
				return nil, err
			}
			buf = append(buf, enc...)
			continue
		case "payload":
			enc, err := validateAsciiHexString(p.Payload)
			if err != nil {
				return nil, err
			}
			buf = append(buf, enc...)
			continue
		}
		enc, err := encodeField(f, nil)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}

	for _, tmpl := range spec.BlockTemplates {
		for _, blk := range filterBlocksByFamily(p.Blocks, tmpl.DeviceFamily) {
			for _, f := range tmpl.Fields {
				switch f.Name {
				case "device_code":
					buf = appendFixed(buf, uint64(blk.Device.Code), deviceCodeWidth(p.Series), true)
				case "start_addr":
					buf = appendFixed(buf, uint64(blk.Addr), startAddrWidth(p.Series), true)
				case "count":
					buf = appendFixed(buf, uint64(blk.Count), f.N, f.LE)
				case "value":
					v := uint64(0)
					if len(blk.Bits) > 0 && blk.Bits[0] {
						v = 1
					}
					buf = appendFixed(buf, v, f.N, f.LE)
				case "data":
					enc, err := encodeBlockData(f, blk)
					if err != nil {
						return nil, err
					}
					buf = append(buf, enc...)
				default:
					enc, err := encodeField(f, nil)
					if err != nil {
						return nil, err
					}
					buf = append(buf, enc...)
				}
			}
		}
	}

	return buf, nil
}

// blockFamilyForRepeatField finds the block template whose repeat_field
// names f (e.g. "word_block_count") and returns the device family it
// repeats over, so a request with block templates of more than one family
// (read_blocks' word+bit mix, read_random_words' word+dword mix) emits a
// per-family count instead of the total block count (§4.3, §8 scenario 4).
func blockFamilyForRepeatField(spec CommandSpec, field string) (DeviceFamily, error) {
	for _, tmpl := range spec.BlockTemplates {
		if tmpl.RepeatField == field {
			return tmpl.DeviceFamily, nil
		}
	}
	return 0, newErr(KindProtocol, "command %v: no block template repeats on field %q", spec.ID, field)
}

func filterBlocksByFamily(blocks []BlockAddress, family DeviceFamily) []BlockAddress {
	out := make([]BlockAddress, 0, len(blocks))
	for _, b := range blocks {
		if family.Accepts(b.Device.Category) {
			out = append(out, b)
		}
	}
	return out
}

func appendFixed(buf []byte, v uint64, n int, le bool) []byte {
	tmp := make([]byte, n)
	if le {
		putUintLE(tmp, v, n)
	} else {
		putUintBE(tmp, v, n)
	}
	return append(buf, tmp...)
}

func encodeField(f FieldSpec, data []byte) ([]byte, error) {
	switch f.Kind {
	case KindBytes:
		return data, nil
	case KindAsciiHex:
		return validateAsciiHexString(data)
	}
	return make([]byte, f.N), nil
}

// validateAsciiHexString checks that every byte of s is an ASCII hex digit
// (0-9, A-F, a-f) and, if so, returns it unchanged: an ascii_hex field
// carries a hex-digit *string* on the wire, not a binary value that gets
// hex-encoded (§6 grammar; original_source/mc_client.rs's echo()).
func validateAsciiHexString(s []byte) ([]byte, error) {
	for _, b := range s {
		if !isASCIIHexDigit(b) {
			return nil, newErr(KindProtocol, "payload contains invalid ascii_hex byte: 0x%02X", b)
		}
	}
	return s, nil
}

func isASCIIHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F') || (b >= 'a' && b <= 'f')
}

func encodeDataField(spec CommandSpec, f FieldSpec, p RequestParams) ([]byte, error) {
	switch f.Kind {
	case KindWords:
		buf := make([]byte, 0, len(p.Words)*2)
		for _, w := range p.Words {
			buf = appendFixed(buf, uint64(w), 2, f.LE)
		}
		return buf, nil
	case KindBytes:
		if spec.DeviceFamily == FamilyBit || spec.ID == CmdWriteBits {
			return encodePackedBits(p.Bits, bitsLSB), nil
		}
		return nil, newErr(KindProtocol, "command %v: no raw byte encoding rule for field %q", spec.ID, f.Name)
	}
	return nil, newErr(KindProtocol, "command %v: field %q has an unsupported data kind", spec.ID, f.Name)
}

func encodeBlockData(f FieldSpec, blk BlockAddress) ([]byte, error) {
	switch f.Kind {
	case KindWords:
		buf := make([]byte, 0, len(blk.Words)*2)
		for _, w := range blk.Words {
			buf = appendFixed(buf, uint64(w), 2, f.LE)
		}
		return buf, nil
	case KindBytes:
		return encodePackedBits(blk.Bits, bitsLSB), nil
	}
	return nil, newErr(KindProtocol, "block field %q has an unsupported data kind", f.Name)
}

func checkLimits(spec CommandSpec, p RequestParams) error {
	switch p.Device.Category {
	case CategoryWord:
		if spec.Limits.WordPoints > 0 && p.Count > spec.Limits.WordPoints {
			return newErr(KindProtocol, "command %v: count %d exceeds word point limit %d", spec.ID, p.Count, spec.Limits.WordPoints)
		}
	case CategoryDoubleWord:
		if spec.Limits.DWordPoints > 0 && p.Count > spec.Limits.DWordPoints {
			return newErr(KindProtocol, "command %v: count %d exceeds dword point limit %d", spec.ID, p.Count, spec.Limits.DWordPoints)
		}
	case CategoryBit:
		if spec.Limits.BitPoints > 0 && p.Count > spec.Limits.BitPoints {
			return newErr(KindProtocol, "command %v: count %d exceeds bit point limit %d", spec.ID, p.Count, spec.Limits.BitPoints)
		}
	}
	return nil
}
