// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrZAPClosed      = errors.New("zap: connection closed")
	ErrZAPTimeout     = errors.New("zap: request timeout")
	ErrZAPInvalidResp = errors.New("zap: invalid response")
)

// MessageType is the first byte of every ZAP frame body.
type MessageType uint8

const (
	MsgRequest  MessageType = 0x01
	MsgResponse MessageType = 0x02
	MsgError    MessageType = 0x03
	MsgNotify   MessageType = 0x04
)

const (
	maxFrameSize      = 64 * 1024 * 1024
	zapWriteDeadline  = 30 * time.Second
	zapAcceptBackoff  = 5 * time.Millisecond
	zapMaxMethodBytes = 1<<16 - 1
)

// Frame layouts, after the 4 byte big-endian length prefix:
//
//	request:  [1 type][4 reqID][2 methodLen][method][payload]
//	notify:   [1 type][2 methodLen][method][payload]
//	response: [1 type][4 reqID][payload]
func encodeFrame(typ MessageType, requestID uint32, method string, payload []byte) ([]byte, error) {
	if len(method) > zapMaxMethodBytes {
		return nil, fmt.Errorf("zap: method name too long (%d bytes)", len(method))
	}
	hasID := typ != MsgNotify
	hasMethod := typ == MsgRequest || typ == MsgNotify

	msgLen := 1 + len(payload)
	if hasID {
		msgLen += 4
	}
	if hasMethod {
		msgLen += 2 + len(method)
	}
	if msgLen > maxFrameSize {
		return nil, fmt.Errorf("zap: frame too large (%d bytes)", msgLen)
	}

	buf := make([]byte, 4, 4+msgLen)
	binary.BigEndian.PutUint32(buf, uint32(msgLen))
	buf = append(buf, byte(typ))
	if hasID {
		buf = binary.BigEndian.AppendUint32(buf, requestID)
	}
	if hasMethod {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(method)))
		buf = append(buf, method...)
	}
	return append(buf, payload...), nil
}

// readFrame reads one length-prefixed frame body.
func readFrame(r io.Reader, header []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	msgLen := binary.BigEndian.Uint32(header)
	if msgLen == 0 || msgLen > maxFrameSize {
		return nil, fmt.Errorf("zap: bad frame length %d", msgLen)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ZAPConn is a client connection. Calls are multiplexed by request id.
type ZAPConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *ZAPResponse
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
}

// ZAPResponse is delivered to a pending call by the read loop.
type ZAPResponse struct {
	Data []byte
	Err  error
}

// ZAPDial connects to a ZAP server
func ZAPDial(ctx context.Context, addr string) (*ZAPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("zap dial: %w", err)
	}

	zc := &ZAPConn{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go zc.readLoop()
	return zc, nil
}

func (z *ZAPConn) write(frame []byte) error {
	z.writeMu.Lock()
	defer z.writeMu.Unlock()
	_, err := z.conn.Write(frame)
	return err
}

// Call sends a request frame and waits for its response or for ctx.
func (z *ZAPConn) Call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if z.closed.Load() {
		return nil, ErrZAPClosed
	}

	requestID := z.nextID.Add(1)
	frame, err := encodeFrame(MsgRequest, requestID, method, payload)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *ZAPResponse, 1)
	z.pending.Store(requestID, respCh)
	defer z.pending.Delete(requestID)

	if err := z.write(frame); err != nil {
		return nil, fmt.Errorf("zap write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-z.readDone:
		return nil, ErrZAPClosed
	}
}

// Notify writes a notify frame. The server sends nothing back.
func (z *ZAPConn) Notify(ctx context.Context, method string, payload []byte) error {
	if z.closed.Load() {
		return ErrZAPClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := encodeFrame(MsgNotify, 0, method, payload)
	if err != nil {
		return err
	}
	return z.write(frame)
}

func (z *ZAPConn) readLoop() {
	defer close(z.readDone)

	header := make([]byte, 4)
	for {
		msg, err := readFrame(z.conn, header)
		if err != nil {
			if !z.closed.Load() {
				logger().Debug("zap read loop stopped", "remote", z.conn.RemoteAddr().String(), "err", err)
			}
			return
		}
		if len(msg) < 5 {
			continue
		}

		msgType := MessageType(msg[0])
		requestID := binary.BigEndian.Uint32(msg[1:5])
		payload := msg[5:]

		ch, ok := z.pending.Load(requestID)
		if !ok {
			continue
		}
		respCh := ch.(chan *ZAPResponse)
		switch msgType {
		case MsgResponse:
			respCh <- &ZAPResponse{Data: payload}
		case MsgError:
			respCh <- &ZAPResponse{Err: errors.New(string(payload))}
		default:
			respCh <- &ZAPResponse{Err: ErrZAPInvalidResp}
		}
	}
}

// Close closes the connection. Pending calls fail with ErrZAPClosed.
func (z *ZAPConn) Close() error {
	if z.closed.Swap(true) {
		return nil
	}
	return z.conn.Close()
}

// ZAPServer serves requests and notifications from ZAP connections.
type ZAPServer struct {
	listener net.Listener
	handler  ZAPHandler
	conns    sync.Map
	closed   atomic.Bool
}

// ZAPHandler answers one request or notification.
type ZAPHandler interface {
	HandleZAP(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// ZAPHandlerFunc is a function adapter for ZAPHandler
type ZAPHandlerFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

func (f ZAPHandlerFunc) HandleZAP(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return f(ctx, method, payload)
}

// NewZAPServer creates a new ZAP server
func NewZAPServer(listener net.Listener, handler ZAPHandler) *ZAPServer {
	return &ZAPServer{
		listener: listener,
		handler:  handler,
	}
}

// Serve accepts connections until the server is closed or ctx ends.
func (s *ZAPServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger().Warn("zap accept failed", "addr", s.listener.Addr().String(), "err", err)
			time.Sleep(zapAcceptBackoff)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *ZAPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)
	// Close may have ranged over conns before this one was stored.
	if s.closed.Load() {
		return
	}

	var writeMu sync.Mutex
	header := make([]byte, 4)
	for {
		msg, err := readFrame(conn, header)
		if err != nil {
			return
		}

		switch MessageType(msg[0]) {
		case MsgRequest:
			if len(msg) < 7 {
				continue
			}
			requestID := binary.BigEndian.Uint32(msg[1:5])
			methodLen := int(binary.BigEndian.Uint16(msg[5:7]))
			if len(msg) < 7+methodLen {
				continue
			}
			method := string(msg[7 : 7+methodLen])
			payload := msg[7+methodLen:]

			go func() {
				respData, err := s.handler.HandleZAP(ctx, method, payload)
				writeMu.Lock()
				defer writeMu.Unlock()
				s.sendResponse(conn, requestID, respData, err)
			}()

		case MsgNotify:
			if len(msg) < 3 {
				continue
			}
			methodLen := int(binary.BigEndian.Uint16(msg[1:3]))
			if len(msg) < 3+methodLen {
				continue
			}
			method := string(msg[3 : 3+methodLen])
			payload := msg[3+methodLen:]

			go func() {
				if _, err := s.handler.HandleZAP(ctx, method, payload); err != nil {
					logger().Debug("zap notification failed", "method", method, "err", err)
				}
			}()
		}
	}
}

func (s *ZAPServer) sendResponse(conn net.Conn, requestID uint32, data []byte, err error) {
	msgType := MsgResponse
	if err != nil {
		msgType = MsgError
		data = []byte(err.Error())
	}

	frame, encErr := encodeFrame(msgType, requestID, "", data)
	if encErr != nil {
		frame, _ = encodeFrame(MsgError, requestID, "", []byte(encErr.Error()))
	}
	_ = conn.SetWriteDeadline(time.Now().Add(zapWriteDeadline))
	if _, werr := conn.Write(frame); werr != nil {
		logger().Debug("zap response write failed", "remote", conn.RemoteAddr().String(), "err", werr)
	}
}

// Close stops accepting and drops open connections.
func (s *ZAPServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *ZAPServer) Addr() net.Addr {
	return s.listener.Addr()
}
