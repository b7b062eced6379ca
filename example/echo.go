package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Zereker/pgwire"
)

// rawMessage carries an opaque message body under its wire type tag.
type rawMessage struct {
	typ  byte
	body []byte
}

func (m rawMessage) Type() byte {
	return m.typ
}

// codec frames rawMessages with the 1-byte type tag and self-inclusive
// 4-byte big-endian length used by PostgreSQL-style protocols.
type codec struct{}

func (codec) Decode(r *pgwire.ReadBuffer) (pgwire.Message, error) {
	body, err := r.ReadBytes(int(r.MessageLength()) - 4)
	if err != nil {
		return nil, err
	}

	// ReadBytes can return a view into the receive buffer; the decoded
	// message outlives the next network read, so take a copy.
	return rawMessage{typ: r.MessageType(), body: append([]byte(nil), body...)}, nil
}

func (codec) Encode(m pgwire.Message, w *pgwire.WriteBuffer) error {
	raw, ok := m.(rawMessage)
	if !ok {
		return errors.New("unsupported message type")
	}

	w.WriteByte(raw.typ)
	w.WriteInt32(int32(len(raw.body) + 4))
	w.WriteBytes(raw.body)
	return nil
}

// echoHandler echoes every framed message back to its peer, tracking the
// live transports by connection id.
type echoHandler struct {
	connID int64

	sync.RWMutex
	transports map[int64]*pgwire.Transport
}

func newEchoHandler(connID int64) *echoHandler {
	return &echoHandler{connID: connID, transports: make(map[int64]*pgwire.Transport)}
}

func (h *echoHandler) Handle(conn *net.TCPConn) {
	connID := atomic.AddInt64(&h.connID, 1)

	codecOption := pgwire.CustomCodecOption(codec{})
	errorOption := pgwire.OnErrorOption(func(err error) pgwire.ErrorAction {
		slog.Error("connection error", "error", err)
		return pgwire.Disconnect
	})

	// Echo
	onMessageOption := pgwire.OnMessageOption(func(m pgwire.Message) error {
		transport := h.getTransport(connID)
		return transport.Write(m)
	})

	transport, err := pgwire.NewTransport(conn, codecOption, errorOption, onMessageOption)
	if err != nil {
		panic(err)
	}

	h.addTransport(connID, transport)

	if err = transport.Run(context.Background()); err != nil {
		h.deleteTransport(connID)
	}
}

func (h *echoHandler) addTransport(connID int64, transport *pgwire.Transport) {
	h.Lock()
	defer h.Unlock()

	slog.Info("add new transport", "connID", connID, "addr", transport.Addr())
	h.transports[connID] = transport
}

func (h *echoHandler) deleteTransport(connID int64) {
	h.Lock()
	defer h.Unlock()

	delete(h.transports, connID)
}

func (h *echoHandler) getTransport(connID int64) *pgwire.Transport {
	h.RLock()
	defer h.RUnlock()

	if transport, ok := h.transports[connID]; ok {
		return transport
	}

	return nil
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	server, err := pgwire.NewServer(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("echo server start", "addr", addr.String())
	if err := server.Serve(ctx, newEchoHandler(time.Now().Unix())); err != nil {
		slog.Error("server error", "error", err)
	}
}
