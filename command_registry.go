package melsec

import (
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// commandDoc mirrors commands.yaml's top-level shape.
type commandDoc struct {
	Commands []commandRecord `yaml:"commands"`
}

type commandRecord struct {
	ID             string                `yaml:"id"`
	CommandCode    int                   `yaml:"command_code"`
	Subcommand     yaml.Node             `yaml:"subcommand"`
	DeviceFamily   string                `yaml:"device_family"`
	RequestFormat  []string              `yaml:"request_format"`
	ResponseFormat []string              `yaml:"response_format"`
	BlockTemplates []blockTemplateRecord `yaml:"block_templates"`
	Limits         *limitsRecord         `yaml:"limits"`
}

type blockTemplateRecord struct {
	Name         string   `yaml:"name"`
	RepeatField  string   `yaml:"repeat_field"`
	DeviceFamily string   `yaml:"device_family"`
	Fields       []string `yaml:"fields"`
}

type limitsRecord struct {
	WordPoints  int `yaml:"word_points"`
	DWordPoints int `yaml:"dword_points"`
	BitPoints   int `yaml:"bit_points"`
}

// parseFieldSpec parses one "name:kind" request_format entry, grounded on
// command_registry.rs's parse_field_spec.
//
//	"name:rest" / "name:.." / "name:bytes"   -> Bytes
//	"name:words_le" / "name:words_be"        -> Words{le}
//	"name:ascii_hex"                         -> AsciiHex
//	"name:<N>le" / "name:<N>be"              -> FixedBytes{n: N, le}
//	"name:<N>"                                -> FixedBytes{n: N, le: true}
func parseFieldSpec(s string) (FieldSpec, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return FieldSpec{}, newErr(KindProtocol, "field spec %q missing ':'", s)
	}
	name := s[:i]
	typ := s[i+1:]
	if name == "" || typ == "" {
		return FieldSpec{}, newErr(KindProtocol, "field spec %q has an empty name or type", s)
	}

	switch typ {
	case "rest", "..", "bytes":
		return FieldSpec{Name: name, Kind: KindBytes}, nil
	case "words_le":
		return FieldSpec{Name: name, Kind: KindWords, LE: true}, nil
	case "words_be":
		return FieldSpec{Name: name, Kind: KindWords, LE: false}, nil
	case "ascii_hex":
		return FieldSpec{Name: name, Kind: KindAsciiHex}, nil
	}

	le := true
	numeric := typ
	switch {
	case strings.HasSuffix(typ, "le"):
		le = true
		numeric = strings.TrimSuffix(typ, "le")
	case strings.HasSuffix(typ, "be"):
		le = false
		numeric = strings.TrimSuffix(typ, "be")
	}
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return FieldSpec{}, newErr(KindProtocol, "field spec %q: unrecognized type %q", s, typ)
	}
	return FieldSpec{Name: name, Kind: KindFixedBytes, N: n, LE: le}, nil
}

// parseResponseEntry parses one "name:directive[:variant]" response_format
// entry, grounded on command_registry.rs's parse_response_entries.
func parseResponseEntry(s string) (ResponseEntry, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return ResponseEntry{}, newErr(KindProtocol, "response entry %q missing ':'", s)
	}
	name := parts[0]
	directive := parts[1]
	variant := ""
	if len(parts) >= 3 {
		variant = parts[2]
	}
	if name == "" {
		return ResponseEntry{}, newErr(KindProtocol, "response entry %q has an empty name", s)
	}

	switch directive {
	case "blocks_words_le":
		return ResponseEntry{Name: name, Directive: DirectiveBlockWords, LE: true}, nil
	case "blocks_words_be":
		return ResponseEntry{Name: name, Directive: DirectiveBlockWords, LE: false}, nil
	case "blocks_bits_packed":
		lsb := true
		if variant == "msb" {
			lsb = false
		}
		return ResponseEntry{Name: name, Directive: DirectiveBlockBitsPacked, LSBFirst: lsb}, nil
	case "blocks_nibbles":
		high := true
		if variant == "low" {
			high = false
		}
		return ResponseEntry{Name: name, Directive: DirectiveBlockNibbles, HighFirst: high}, nil
	case "ascii_hex":
		return ResponseEntry{Name: name, Directive: DirectiveAsciiHex}, nil
	}
	return ResponseEntry{}, newErr(KindProtocol, "response entry %q: unrecognized directive %q", s, directive)
}

func parseSubcommandNode(node yaml.Node) (SubcommandSpec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return SubcommandSpec{}, wrapErr(KindProtocol, err, "decoding scalar subcommand")
		}
		v := uint16(n)
		return SubcommandSpec{Single: &v}, nil
	case yaml.MappingNode:
		var m map[string]int
		if err := node.Decode(&m); err != nil {
			return SubcommandSpec{}, wrapErr(KindProtocol, err, "decoding per-series subcommand")
		}
		out := make(map[Series]uint16, len(m))
		for k, v := range m {
			s, err := ParseSeries(k)
			if err != nil {
				return SubcommandSpec{}, err
			}
			out[s] = uint16(v)
		}
		return SubcommandSpec{PerSeries: out}, nil
	}
	return SubcommandSpec{}, newErr(KindProtocol, "subcommand field must be a scalar or a series map")
}

// CommandRegistry is the parsed, validated set of command schemas.
type CommandRegistry struct {
	byID      map[CommandID]CommandSpec
	byCodeSub map[uint32][]CommandSpec // key: code<<16|sub
}

func parseCommandDoc(doc commandDoc) (*CommandRegistry, error) {
	reg := &CommandRegistry{
		byID:      make(map[CommandID]CommandSpec, len(doc.Commands)),
		byCodeSub: make(map[uint32][]CommandSpec),
	}
	for _, rec := range doc.Commands {
		id, ok := parseCommandID(rec.ID)
		if !ok {
			return nil, newErr(KindProtocol, "unknown command id %q", rec.ID)
		}
		if _, dup := reg.byID[id]; dup {
			return nil, newErr(KindProtocol, "duplicate command id %q", rec.ID)
		}
		family, err := parseDeviceFamily(rec.DeviceFamily)
		if err != nil {
			return nil, err
		}
		sub, err := parseSubcommandNode(rec.Subcommand)
		if err != nil {
			return nil, err
		}

		reqFields := make([]FieldSpec, 0, len(rec.RequestFormat))
		for _, s := range rec.RequestFormat {
			fs, err := parseFieldSpec(s)
			if err != nil {
				return nil, err
			}
			reqFields = append(reqFields, fs)
		}

		respEntries := make([]ResponseEntry, 0, len(rec.ResponseFormat))
		respNames := make(map[string]bool, len(rec.ResponseFormat))
		for _, s := range rec.ResponseFormat {
			re, err := parseResponseEntry(s)
			if err != nil {
				return nil, err
			}
			respEntries = append(respEntries, re)
			respNames[re.Name] = true
		}

		templates := make([]BlockTemplate, 0, len(rec.BlockTemplates))
		for _, bt := range rec.BlockTemplates {
			if bt.RepeatField == "" {
				return nil, newErr(KindProtocol, "command %q: block template %q has no repeat_field", rec.ID, bt.Name)
			}
			repeatFound := false
			for _, fs := range reqFields {
				if fs.Name == bt.RepeatField {
					repeatFound = true
					break
				}
			}
			if !repeatFound {
				return nil, newErr(KindProtocol, "command %q: block template %q repeats on unknown field %q", rec.ID, bt.Name, bt.RepeatField)
			}
			tplFamily, err := parseDeviceFamily(bt.DeviceFamily)
			if err != nil {
				return nil, err
			}
			fields := make([]FieldSpec, 0, len(bt.Fields))
			for _, s := range bt.Fields {
				fs, err := parseFieldSpec(s)
				if err != nil {
					return nil, err
				}
				fields = append(fields, fs)
			}
			templates = append(templates, BlockTemplate{
				Name:         bt.Name,
				RepeatField:  bt.RepeatField,
				DeviceFamily: tplFamily,
				Fields:       fields,
			})
		}

		var limits Limits
		if rec.Limits != nil {
			limits = Limits{
				WordPoints:  rec.Limits.WordPoints,
				DWordPoints: rec.Limits.DWordPoints,
				BitPoints:   rec.Limits.BitPoints,
			}
		}

		spec := CommandSpec{
			ID:             id,
			CommandCode:    uint16(rec.CommandCode),
			Subcommand:     sub,
			DeviceFamily:   family,
			RequestFields:  reqFields,
			ResponseFields: respEntries,
			BlockTemplates: templates,
			Limits:         limits,
		}
		reg.byID[id] = spec

		if sub.Single != nil {
			key := uint32(spec.CommandCode)<<16 | uint32(*sub.Single)
			reg.byCodeSub[key] = append(reg.byCodeSub[key], spec)
		} else {
			for _, subCode := range sub.PerSeries {
				key := uint32(spec.CommandCode)<<16 | uint32(subCode)
				reg.byCodeSub[key] = append(reg.byCodeSub[key], spec)
			}
		}
	}
	return reg, nil
}

func parseCommandYAML(data []byte) (*CommandRegistry, error) {
	var doc commandDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, wrapErr(KindProtocol, err, "parsing command document")
	}
	return parseCommandDoc(doc)
}

// Get returns the spec for id.
func (r *CommandRegistry) Get(id CommandID) (CommandSpec, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// FindByCodeAndSub resolves the command that matches a wire command code
// and subcommand for the given series; the mock server uses it to dispatch
// incoming requests.
func (r *CommandRegistry) FindByCodeAndSub(code, sub uint16, series Series) (CommandSpec, bool) {
	key := uint32(code)<<16 | uint32(sub)
	for _, spec := range r.byCodeSub[key] {
		if resolved, err := spec.Subcommand.Resolve(series); err == nil && resolved == sub {
			return spec, true
		}
	}
	return CommandSpec{}, false
}

var (
	globalCommandsMu sync.RWMutex
	globalCommands   *CommandRegistry
)

// SetGlobalCommandRegistry installs reg as the process-wide registry. A
// second call returns ErrAlreadyRegistered, matching the Command Registry's
// single-set lifecycle (§3); callers that only want "load the defaults if
// nobody has yet" should swallow that specific error, as InitDefaults does.
func SetGlobalCommandRegistry(reg *CommandRegistry) error {
	globalCommandsMu.Lock()
	defer globalCommandsMu.Unlock()
	if globalCommands != nil {
		return ErrAlreadyRegistered
	}
	globalCommands = reg
	return nil
}

// GlobalCommandRegistry returns the process-wide registry, or nil if none
// has been set.
func GlobalCommandRegistry() *CommandRegistry {
	globalCommandsMu.RLock()
	defer globalCommandsMu.RUnlock()
	return globalCommands
}

func resetGlobalCommandRegistryForTest() {
	globalCommandsMu.Lock()
	defer globalCommandsMu.Unlock()
	globalCommands = nil
}
