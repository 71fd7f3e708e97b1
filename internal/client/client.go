// Package client implements a minimal client for the wire protocol in
// internal/wireproto, so that the CLI front end (and tests) can talk
// to a running treasury server without reimplementing framing.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/treasuryhq/treasury/internal/idgen"
	"github.com/treasuryhq/treasury/internal/wireproto"
)

// Client is a single connection to a treasury server, opened against
// one treasury path.
type Client struct {
	conn net.Conn
}

// Dial connects to addr, performs the handshake, and opens the
// treasury at path (creating it if init is true).
func Dial(addr, path string, init bool) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	if err := wireproto.WriteHandshake(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: sending handshake: %w", err)
	}
	if err := wireproto.ReadHandshake(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: reading handshake: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.open(path, init); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) open(path string, init bool) error {
	req := wireproto.OpenRequest{Path: path, Init: init}
	if err := wireproto.WriteFrame(c.conn, req.Encode()); err != nil {
		return fmt.Errorf("client: sending open: %w", err)
	}
	frame, err := wireproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("client: reading open response: %w", err)
	}
	tag, body, err := wireproto.PeekTag(frame)
	if err != nil {
		return err
	}
	switch tag {
	case wireproto.TagOpenSuccess:
		return nil
	case wireproto.TagOpenFailure:
		fail, err := wireproto.DecodeOpenFailure(body)
		if err != nil {
			return err
		}
		return fmt.Errorf("client: open %q: %s", path, fail.Description)
	default:
		return fmt.Errorf("client: unexpected open response tag %d", tag)
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Result is what Store, Fetch, and Find report back on success.
type Result struct {
	ID   idgen.ID
	Path string
}

// Store imports source into target, optionally hinting the importer
// by format, and returns the resulting asset.
func (c *Client) Store(source, format, target string) (Result, error) {
	req := wireproto.StoreRequest{Source: source, Format: format, Target: target}
	return c.call(req.Encode())
}

// Fetch resolves a previously stored asset id to its artifact path.
func (c *Client) Fetch(id idgen.ID) (Result, bool, error) {
	req := wireproto.FetchURLRequest{ID: id}
	return c.callOptional(req.Encode())
}

// Find reports whether source has already been imported to target.
func (c *Client) Find(source, target string) (Result, bool, error) {
	req := wireproto.FindAssetRequest{Source: source, Target: target}
	return c.callOptional(req.Encode())
}

func (c *Client) call(frame []byte) (Result, error) {
	res, ok, err := c.callOptional(frame)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("client: asset not found")
	}
	return res, nil
}

func (c *Client) callOptional(frame []byte) (Result, bool, error) {
	if err := wireproto.WriteFrame(c.conn, frame); err != nil {
		return Result{}, false, fmt.Errorf("client: sending request: %w", err)
	}
	resp, err := wireproto.ReadFrame(c.conn)
	if err != nil {
		return Result{}, false, fmt.Errorf("client: reading response: %w", err)
	}
	tag, body, err := wireproto.PeekTag(resp)
	if err != nil {
		return Result{}, false, err
	}
	switch tag {
	case wireproto.TagSuccess:
		res, err := wireproto.DecodeSuccess(body)
		if err != nil {
			return Result{}, false, err
		}
		return Result{ID: res.ID, Path: res.Path}, true, nil
	case wireproto.TagNotFound:
		return Result{}, false, nil
	case wireproto.TagFailure:
		fail, err := wireproto.DecodeFailure(body)
		if err != nil {
			return Result{}, false, err
		}
		return Result{}, false, fmt.Errorf("client: %s", fail.Description)
	default:
		return Result{}, false, fmt.Errorf("client: unexpected response tag %d", tag)
	}
}
