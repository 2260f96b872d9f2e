package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible server
// using RESP2 over a small pool of reusable connections.
type ValkeyProvider struct {
	cfg ValkeyConfig

	mu     sync.Mutex
	idle   []*valkeyConn
	closed bool
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	MaxIdle      int
	TLS          bool
}

// ErrProviderClosed is returned after Close.
var ErrProviderClosed = errors.New("valkey provider closed")

// serverError is an error reply from the server; it is never retried.
type serverError string

func (e serverError) Error() string { return "valkey: " + string(e) }

// NewValkeyProvider creates a Provider and pings the target so bad
// credentials or connectivity fail at boot.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	normaliseConfig(&cfg)
	p := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	reply, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if reply.kind != replySimpleString || string(reply.data) != "PONG" {
		return nil, fmt.Errorf("unexpected PING response: %s", reply.data)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", []byte(key))
	if err != nil {
		return nil, err
	}
	switch reply.kind {
	case replyNil:
		return nil, ErrCacheMiss
	case replyBulkString:
		return reply.data, nil
	default:
		return nil, fmt.Errorf("unexpected valkey reply type %q for GET", reply.kind)
	}
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	reply, err := p.do(ctx, "SET", withTTL([][]byte{[]byte(key), value}, ttl)...)
	if err != nil {
		return err
	}
	if reply.kind != replySimpleString || string(reply.data) != "OK" {
		return fmt.Errorf("unexpected SET response: %s", reply.data)
	}
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := append(withTTL([][]byte{[]byte(key), value}, ttl), []byte("NX"))
	reply, err := p.do(ctx, "SET", args...)
	if err != nil {
		return false, err
	}
	switch reply.kind {
	case replySimpleString:
		return true, nil
	case replyNil:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected SET NX response type %q", reply.kind)
	}
}

// Del removes a key from the cache.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", []byte(key))
	return err
}

// Close releases pooled connections. Later calls fail with ErrProviderClosed.
func (p *ValkeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, vc := range p.idle {
		vc.close()
	}
	p.idle = nil
	return nil
}

func withTTL(args [][]byte, ttl time.Duration) [][]byte {
	if ttl > 0 {
		args = append(args, []byte("PX"), []byte(strconv.FormatInt(ttl.Milliseconds(), 10)))
	}
	return args
}

// do runs one command, retrying transient network failures on a fresh connection.
func (p *ValkeyProvider) do(ctx context.Context, command string, args ...[]byte) (respReply, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return respReply{}, err
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return respReply{}, ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		vc, err := p.acquire(ctx)
		if err != nil {
			lastErr = err
			if shouldRetry(err) {
				continue
			}
			return respReply{}, err
		}
		reply, err := vc.roundTrip(ctx, command, args...)
		if err == nil {
			p.release(vc)
			return reply, nil
		}
		var srvErr serverError
		if errors.As(err, &srvErr) {
			p.release(vc)
			return respReply{}, err
		}
		vc.close()
		lastErr = err
		if !shouldRetry(err) {
			return respReply{}, err
		}
	}
	return respReply{}, lastErr
}

func (p *ValkeyProvider) acquire(ctx context.Context) (*valkeyConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrProviderClosed
	}
	if n := len(p.idle); n > 0 {
		vc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return vc, nil
	}
	p.mu.Unlock()

	vc, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.bootstrap(ctx, vc); err != nil {
		vc.close()
		return nil, err
	}
	return vc, nil
}

func (p *ValkeyProvider) release(vc *valkeyConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.cfg.MaxIdle {
		vc.close()
		return
	}
	p.idle = append(p.idle, vc)
}

func (p *ValkeyProvider) dial(ctx context.Context) (*valkeyConn, error) {
	dialer := net.Dialer{Timeout: deadlineOr(ctx, p.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostForTLS(p.cfg.Addr)}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &valkeyConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cfg:    p.cfg,
	}, nil
}

func (p *ValkeyProvider) bootstrap(ctx context.Context, vc *valkeyConn) error {
	if p.cfg.Password != "" {
		args := [][]byte{[]byte(p.cfg.Password)}
		if p.cfg.Username != "" {
			args = [][]byte{[]byte(p.cfg.Username), []byte(p.cfg.Password)}
		}
		if err := vc.expectOK(ctx, "AUTH", args...); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if err := vc.expectOK(ctx, "SELECT", []byte(strconv.Itoa(p.cfg.DB))); err != nil {
			return fmt.Errorf("select failed: %w", err)
		}
	}
	return nil
}

// replyKind enumerates the subset of RESP types needed by the provider.
type replyKind string

const (
	replySimpleString replyKind = "+"
	replyBulkString   replyKind = "$"
	replyInteger      replyKind = ":"
	replyNil          replyKind = "_"
)

type respReply struct {
	kind replyKind
	data []byte
}

// valkeyConn wraps a network connection with RESP helpers.
type valkeyConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cfg    ValkeyConfig
}

func (vc *valkeyConn) close() {
	_ = vc.conn.Close()
}

func (vc *valkeyConn) roundTrip(ctx context.Context, command string, args ...[]byte) (respReply, error) {
	if err := vc.write(ctx, command, args...); err != nil {
		return respReply{}, err
	}
	return vc.readReply(ctx)
}

func (vc *valkeyConn) expectOK(ctx context.Context, command string, args ...[]byte) error {
	reply, err := vc.roundTrip(ctx, command, args...)
	if err != nil {
		return err
	}
	if reply.kind != replySimpleString || !strings.EqualFold(string(reply.data), "OK") {
		return fmt.Errorf("unexpected %s response: %s", command, reply.data)
	}
	return nil
}

func (vc *valkeyConn) write(ctx context.Context, command string, args ...[]byte) error {
	if err := vc.conn.SetWriteDeadline(time.Now().Add(deadlineOr(ctx, vc.cfg.WriteTimeout))); err != nil {
		return err
	}
	fmt.Fprintf(vc.writer, "*%d\r\n$%d\r\n%s\r\n", len(args)+1, len(command), command)
	for _, arg := range args {
		fmt.Fprintf(vc.writer, "$%d\r\n", len(arg))
		vc.writer.Write(arg)
		vc.writer.WriteString("\r\n")
	}
	return vc.writer.Flush()
}

func (vc *valkeyConn) readReply(ctx context.Context) (respReply, error) {
	if err := vc.conn.SetReadDeadline(time.Now().Add(deadlineOr(ctx, vc.cfg.ReadTimeout))); err != nil {
		return respReply{}, err
	}
	prefix, err := vc.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	line, err := vc.readLine()
	if err != nil {
		return respReply{}, err
	}
	switch prefix {
	case '+':
		return respReply{kind: replySimpleString, data: line}, nil
	case '-':
		return respReply{}, serverError(line)
	case ':':
		return respReply{kind: replyInteger, data: line}, nil
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, err
		}
		if size < 0 {
			return respReply{kind: replyNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(vc.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, fmt.Errorf("invalid line termination")
		}
		return respReply{kind: replyBulkString, data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (vc *valkeyConn) readLine() ([]byte, error) {
	line, err := vc.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func normaliseConfig(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 4
	}
}

// deadlineOr returns d, shortened to what is left of ctx's deadline.
func deadlineOr(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d <= 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func shouldRetry(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

func hostForTLS(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
