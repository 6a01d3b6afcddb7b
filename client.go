package melsec

import (
	"context"
	"encoding/hex"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// defaultMonitorTime is the monitoring timer value embedded in every
// request, in the wire's 250ms units (§9): 4 * 250ms = 1s.
const defaultMonitorTime uint16 = 4

// Client is a melsec MC protocol client bound to a single Target. It pools
// TCP connections per target address and is safe for concurrent use by
// multiple goroutines, mirroring the teacher's Client/Config pairing
// generalized from a single Modbus endpoint to the MC Target model.
type Client struct {
	target Target
	pool   *tcpPool
}

// NewClient returns a Client bound to target. Call InitDefaults once per
// process before issuing requests, unless the caller has already
// installed its own command/device/error registries.
func NewClient(target Target) *Client {
	return &Client{target: target, pool: newTCPPool()}
}

// Close releases every pooled connection the client is holding.
func (c *Client) Close() error {
	c.pool.closeAll()
	return nil
}

func (c *Client) registries() (*CommandRegistry, *DeviceCatalog, error) {
	cmds := GlobalCommandRegistry()
	if cmds == nil {
		return nil, nil, newErr(KindProtocol, "no command registry installed; call InitDefaults or SetGlobalCommandRegistry first")
	}
	devs := GlobalDeviceCatalog()
	if devs == nil {
		return nil, nil, newErr(KindProtocol, "no device catalog installed; call InitDefaults or SetGlobalDeviceCatalog first")
	}
	return cmds, devs, nil
}

// send assembles a request frame from body, transmits it over the
// client's target (TCP with pooled retry, or UDP), and returns the decoded
// response frame with a non-zero EndCode translated into an *EndCodeError.
func (c *Client) send(ctx context.Context, body []byte, timeout time.Duration) (Frame, error) {
	if c.target.Host == "" || c.target.Port == 0 {
		return Frame{}, ErrNoTarget
	}
	route := c.target.AccessRoute
	serialNo := nextSerial()

	var reqFrame []byte
	switch c.target.Dialect {
	case DialectCompact:
		reqFrame = AssembleCompactRequest(route, defaultMonitorTime, body)
	default:
		reqFrame = AssembleExtendedRequest(route, serialNo, defaultMonitorTime, body)
	}

	cfg := GetRuntimeConfig()
	if cfg.LogPayloads {
		Logger().Debug("sending frame", "target", c.target.Addr(), "bytes", hex.EncodeToString(reqFrame))
	}

	var frame Frame
	if c.target.Protocol == ProtocolUDP {
		f, err := sendUDP(ctx, c.target.Addr(), reqFrame, c.target.Dialect, serialNo, time.Now().Add(timeout))
		if err != nil {
			return Frame{}, err
		}
		frame = f
	} else {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = cfg.TCPRetryBackoff
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		bounded := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.TCPRetryAttempts)), ctx)

		attempt := func() error {
			return c.pool.withConn(ctx, c.target.Addr(), timeout, func(conn net.Conn) (bool, error) {
				if _, werr := conn.Write(reqFrame); werr != nil {
					return true, wrapErr(KindIO, werr, "writing request to %s", c.target.Addr())
				}
				f, rerr := readFrame(ctx, conn, time.Now().Add(timeout), serialNo)
				if rerr != nil {
					return true, rerr
				}
				frame = f
				return false, nil
			})
		}

		if err := backoff.Retry(func() error {
			err := attempt()
			if err != nil && cfg.DumpOnError {
				Logger().Warn("tcp request attempt failed", "target", c.target.Addr(), "err", err)
			}
			if err != nil && IsKind(err, KindProtocol) {
				return backoff.Permanent(err)
			}
			return err
		}, bounded); err != nil {
			return Frame{}, err
		}
	}

	if cfg.LogPayloads {
		Logger().Debug("received frame", "target", c.target.Addr(), "end_code", frame.EndCode, "body", hex.EncodeToString(frame.Body))
	}
	if frame.EndCode != 0x0000 {
		return frame, newEndCodeError(frame.EndCode)
	}
	return frame, nil
}

// ReadWords reads count words starting at the given symbolic device
// address (e.g. "D100").
func (c *Client) ReadWords(ctx context.Context, address string, count int, timeout time.Duration) ([]uint16, error) {
	cmds, devs, err := c.registries()
	if err != nil {
		return nil, err
	}
	dev, addr, err := devs.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	spec, ok := cmds.Get(CmdReadWords)
	if !ok {
		return nil, newErr(KindProtocol, "read_words command not registered")
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Device: dev, Addr: addr, Count: count})
	if err != nil {
		return nil, err
	}
	frame, err := c.send(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseResponse(spec, frame.Body, []int{count}, []Device{dev})
	if err != nil {
		return nil, err
	}
	return parsed.Words["data_blocks"], nil
}

// WriteWords writes words starting at the given symbolic device address.
func (c *Client) WriteWords(ctx context.Context, address string, words []uint16, timeout time.Duration) error {
	cmds, devs, err := c.registries()
	if err != nil {
		return err
	}
	dev, addr, err := devs.ParseAddress(address)
	if err != nil {
		return err
	}
	spec, ok := cmds.Get(CmdWriteWords)
	if !ok {
		return newErr(KindProtocol, "write_words command not registered")
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Device: dev, Addr: addr, Count: len(words), Words: words})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, body, timeout)
	return err
}

// ReadBits reads count bit points starting at the given symbolic device
// address.
func (c *Client) ReadBits(ctx context.Context, address string, count int, timeout time.Duration) ([]bool, error) {
	cmds, devs, err := c.registries()
	if err != nil {
		return nil, err
	}
	dev, addr, err := devs.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	spec, ok := cmds.Get(CmdReadBits)
	if !ok {
		return nil, newErr(KindProtocol, "read_bits command not registered")
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Device: dev, Addr: addr, Count: count})
	if err != nil {
		return nil, err
	}
	frame, err := c.send(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseResponse(spec, frame.Body, []int{count}, []Device{dev})
	if err != nil {
		return nil, err
	}
	return parsed.Bits["data_blocks"], nil
}

// WriteBits writes bit points starting at the given symbolic device
// address.
func (c *Client) WriteBits(ctx context.Context, address string, bits []bool, timeout time.Duration) error {
	cmds, devs, err := c.registries()
	if err != nil {
		return err
	}
	dev, addr, err := devs.ParseAddress(address)
	if err != nil {
		return err
	}
	spec, ok := cmds.Get(CmdWriteBits)
	if !ok {
		return newErr(KindProtocol, "write_bits command not registered")
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Device: dev, Addr: addr, Count: len(bits), Bits: bits})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, body, timeout)
	return err
}

// Echo round-trips payload off the PLC's self-test command, returning
// whatever bytes it echoed back. payload must consist entirely of ASCII
// hex digits (0-9, A-F, a-f); anything else is rejected before it's sent.
func (c *Client) Echo(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	cmds, _, err := c.registries()
	if err != nil {
		return nil, err
	}
	spec, ok := cmds.Get(CmdEcho)
	if !ok {
		return nil, newErr(KindProtocol, "echo command not registered")
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Payload: payload})
	if err != nil {
		return nil, err
	}
	frame, err := c.send(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseResponse(spec, frame.Body, nil, nil)
	if err != nil {
		return nil, err
	}
	return parsed.Raw["payload"], nil
}

// ReadRandomWords reads one word from each of the given symbolic device
// addresses, which need not be contiguous.
func (c *Client) ReadRandomWords(ctx context.Context, addresses []string, timeout time.Duration) ([]uint16, error) {
	cmds, devs, err := c.registries()
	if err != nil {
		return nil, err
	}
	spec, ok := cmds.Get(CmdReadRandomWords)
	if !ok {
		return nil, newErr(KindProtocol, "read_random_words command not registered")
	}
	blocks := make([]BlockAddress, 0, len(addresses))
	for _, a := range addresses {
		dev, addr, err := devs.ParseAddress(a)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, BlockAddress{Device: dev, Addr: addr})
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Blocks: blocks})
	if err != nil {
		return nil, err
	}
	frame, err := c.send(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseResponse(spec, frame.Body, []int{len(blocks)}, nil)
	if err != nil {
		return nil, err
	}
	return parsed.Words["data_blocks"], nil
}

// WriteRandomWords writes one word to each of the given symbolic device
// addresses.
func (c *Client) WriteRandomWords(ctx context.Context, addresses []string, values []uint16, timeout time.Duration) error {
	if len(addresses) != len(values) {
		return newErr(KindProtocol, "write_random_words: %d addresses but %d values", len(addresses), len(values))
	}
	cmds, devs, err := c.registries()
	if err != nil {
		return err
	}
	spec, ok := cmds.Get(CmdWriteRandomWords)
	if !ok {
		return newErr(KindProtocol, "write_random_words command not registered")
	}
	blocks := make([]BlockAddress, 0, len(addresses))
	for i, a := range addresses {
		dev, addr, err := devs.ParseAddress(a)
		if err != nil {
			return err
		}
		blocks = append(blocks, BlockAddress{Device: dev, Addr: addr, Words: []uint16{values[i]}})
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Blocks: blocks})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, body, timeout)
	return err
}

// WriteRandomBits writes one bit to each of the given symbolic device
// addresses.
func (c *Client) WriteRandomBits(ctx context.Context, addresses []string, values []bool, timeout time.Duration) error {
	if len(addresses) != len(values) {
		return newErr(KindProtocol, "write_random_bits: %d addresses but %d values", len(addresses), len(values))
	}
	cmds, devs, err := c.registries()
	if err != nil {
		return err
	}
	spec, ok := cmds.Get(CmdWriteRandomBits)
	if !ok {
		return newErr(KindProtocol, "write_random_bits command not registered")
	}
	blocks := make([]BlockAddress, 0, len(addresses))
	for i, a := range addresses {
		dev, addr, err := devs.ParseAddress(a)
		if err != nil {
			return err
		}
		blocks = append(blocks, BlockAddress{Device: dev, Addr: addr, Bits: []bool{values[i]}})
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Blocks: blocks})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, body, timeout)
	return err
}

// BlockRequest names one contiguous range to read or write as part of a
// mixed word/bit block command.
type BlockRequest struct {
	Address string
	Count   int
	Words   []uint16
	Bits    []bool
}

// ReadBlocks reads several contiguous word and bit ranges in one request.
func (c *Client) ReadBlocks(ctx context.Context, ranges []BlockRequest, timeout time.Duration) (*ParsedResponse, error) {
	cmds, devs, err := c.registries()
	if err != nil {
		return nil, err
	}
	spec, ok := cmds.Get(CmdReadBlocks)
	if !ok {
		return nil, newErr(KindProtocol, "read_blocks command not registered")
	}
	blocks, wordCount, bitCount, err := resolveBlockRequests(devs, ranges)
	if err != nil {
		return nil, err
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Blocks: blocks})
	if err != nil {
		return nil, err
	}
	frame, err := c.send(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(spec, frame.Body, []int{wordCount, bitCount}, nil)
}

// WriteBlocks writes several contiguous word and bit ranges in one
// request.
func (c *Client) WriteBlocks(ctx context.Context, ranges []BlockRequest, timeout time.Duration) error {
	cmds, devs, err := c.registries()
	if err != nil {
		return err
	}
	spec, ok := cmds.Get(CmdWriteBlocks)
	if !ok {
		return newErr(KindProtocol, "write_blocks command not registered")
	}
	blocks, _, _, err := resolveBlockRequests(devs, ranges)
	if err != nil {
		return err
	}
	body, err := BuildRequest(spec, RequestParams{Series: c.target.Series, Blocks: blocks})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, body, timeout)
	return err
}

func resolveBlockRequests(devs *DeviceCatalog, ranges []BlockRequest) (blocks []BlockAddress, wordCount, bitCount int, err error) {
	for _, r := range ranges {
		dev, addr, perr := devs.ParseAddress(r.Address)
		if perr != nil {
			return nil, 0, 0, perr
		}
		blocks = append(blocks, BlockAddress{Device: dev, Addr: addr, Count: r.Count, Words: r.Words, Bits: r.Bits})
		if dev.Category == CategoryBit {
			bitCount += r.Count
		} else {
			wordCount += r.Count
		}
	}
	return blocks, wordCount, bitCount, nil
}
