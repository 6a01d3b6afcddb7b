package melsec

import (
	"strconv"
	"strings"
	"sync"
)

// DeviceCategory classifies a Device's addressable unit.
type DeviceCategory byte

const (
	CategoryBit DeviceCategory = iota
	CategoryWord
	CategoryDoubleWord
)

func (c DeviceCategory) String() string {
	switch c {
	case CategoryBit:
		return "bit"
	case CategoryWord:
		return "word"
	case CategoryDoubleWord:
		return "double_word"
	}
	return "unknown"
}

func parseDeviceCategory(s string) (DeviceCategory, error) {
	switch strings.ToLower(s) {
	case "bit":
		return CategoryBit, nil
	case "word":
		return CategoryWord, nil
	case "double_word", "doubleword", "dword":
		return CategoryDoubleWord, nil
	}
	return 0, newErr(KindProtocol, "unknown device category %q", s)
}

// NumberBase is the radix used to parse a device address's numeric suffix.
type NumberBase byte

const (
	BaseDecimal NumberBase = iota
	BaseHexadecimal
)

func parseNumberBase(s string) (NumberBase, error) {
	switch strings.ToLower(s) {
	case "decimal", "dec":
		return BaseDecimal, nil
	case "hexadecimal", "hex":
		return BaseHexadecimal, nil
	}
	return 0, newErr(KindProtocol, "unknown device number base %q", s)
}

// MaxDeviceAddress is the hard 24-bit address range invariant (§3).
const MaxDeviceAddress uint32 = 0x00FF_FFFF

// Device is a symbolic region of PLC memory: a symbol/code/category/radix
// tuple plus the series it is valid on.
type Device struct {
	Symbol          string
	Code            uint16
	Category        DeviceCategory
	Base            NumberBase
	SupportedSeries []Series
	Description     string
}

// SupportsSeries reports whether the device is valid on the given series.
func (d Device) SupportsSeries(s Series) bool {
	for _, x := range d.SupportedSeries {
		if x == s {
			return true
		}
	}
	return false
}

// deviceDoc mirrors the YAML shape described in §6 of the expanded spec.
type deviceDoc struct {
	Devices []deviceRecord `yaml:"devices"`
}

type deviceRecord struct {
	Symbol      string   `yaml:"symbol"`
	Code        int      `yaml:"code"`
	Category    string   `yaml:"category"`
	Base        string   `yaml:"base"`
	Description string   `yaml:"description"`
	Series      []string `yaml:"series"`
}

// DeviceCatalog is the parsed, lazily-indexed device table. A process uses
// exactly one global catalog (set via SetGlobalDeviceCatalog); see
// devices_data.go for the embedded baseline. No overlay file is loaded at
// runtime.
type DeviceCatalog struct {
	records []Device

	once    sync.Once
	bySym   map[string]Device
	byCode  map[uint16]Device
}

// parseDeviceDoc validates already-decoded device records and builds a
// DeviceCatalog from them.
func parseDeviceDoc(records []deviceRecord) (*DeviceCatalog, error) {
	out := make([]Device, 0, len(records))
	seenSym := make(map[string]bool, len(records))
	seenCode := make(map[uint16]bool, len(records))
	for _, r := range records {
		cat, err := parseDeviceCategory(r.Category)
		if err != nil {
			return nil, err
		}
		base, err := parseNumberBase(r.Base)
		if err != nil {
			return nil, err
		}
		if r.Symbol == "" {
			return nil, newErr(KindProtocol, "device record with empty symbol")
		}
		if seenSym[r.Symbol] {
			return nil, newErr(KindProtocol, "duplicate device symbol %q", r.Symbol)
		}
		code := uint16(r.Code)
		if seenCode[code] {
			return nil, newErr(KindProtocol, "duplicate device code %d", code)
		}
		seenSym[r.Symbol] = true
		seenCode[code] = true

		series := make([]Series, 0, len(r.Series))
		for _, s := range r.Series {
			ps, err := ParseSeries(s)
			if err != nil {
				return nil, err
			}
			series = append(series, ps)
		}
		if len(series) == 0 {
			return nil, newErr(KindProtocol, "device %q declares no supported series", r.Symbol)
		}

		out = append(out, Device{
			Symbol:          r.Symbol,
			Code:            code,
			Category:        cat,
			Base:            base,
			SupportedSeries: series,
			Description:     r.Description,
		})
	}
	return &DeviceCatalog{records: out}, nil
}

func (c *DeviceCatalog) index() {
	c.once.Do(func() {
		c.bySym = make(map[string]Device, len(c.records))
		c.byCode = make(map[uint16]Device, len(c.records))
		for _, d := range c.records {
			c.bySym[d.Symbol] = d
			c.byCode[d.Code] = d
		}
	})
}

// DeviceBySymbol looks a device up by its symbol, e.g. "D" or "TS".
func (c *DeviceCatalog) DeviceBySymbol(sym string) (Device, bool) {
	c.index()
	d, ok := c.bySym[sym]
	return d, ok
}

// DeviceByCode looks a device up by its wire code.
func (c *DeviceCatalog) DeviceByCode(code uint16) (Device, bool) {
	c.index()
	d, ok := c.byCode[code]
	return d, ok
}

// ParseAddress splits a human device address such as "D100" or "M" into its
// device and numeric offset, resolving the symbol and parsing the numeric
// tail in the device's declared radix. An address with no digits means
// offset 0.
func (c *DeviceCatalog) ParseAddress(s string) (Device, uint32, error) {
	if s == "" {
		return Device{}, 0, newErr(KindProtocol, "empty device address")
	}
	i := 0
	for i < len(s) && isAddrLetter(s[i]) {
		i++
	}
	if i == 0 {
		return Device{}, 0, newErr(KindProtocol, "device address %q has no leading symbol", s)
	}
	sym := strings.ToUpper(s[:i])
	dev, ok := c.DeviceBySymbol(sym)
	if !ok {
		return Device{}, 0, newErr(KindProtocol, "unknown device symbol %q", sym)
	}

	tail := s[i:]
	var addr uint64
	var err error
	switch {
	case tail == "":
		addr = 0
	case dev.Base == BaseHexadecimal:
		addr, err = strconv.ParseUint(tail, 16, 32)
	default:
		addr, err = strconv.ParseUint(tail, 10, 32)
	}
	if err != nil {
		return Device{}, 0, newErr(KindProtocol, "device address %q: unparsable numeric portion %q", s, tail)
	}
	if uint32(addr) > MaxDeviceAddress {
		return Device{}, 0, newErr(KindProtocol, "device address %q exceeds 24-bit range", s)
	}
	return dev, uint32(addr), nil
}

func isAddrLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
