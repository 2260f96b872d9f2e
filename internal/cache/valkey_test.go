package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeValkey speaks just enough RESP2 for PING/AUTH/GET/SET/DEL.
type fakeValkey struct {
	ln       net.Listener
	mu       sync.Mutex
	data     map[string]string
	password string
	conns    int
}

func startFakeValkey(t *testing.T, password string) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen unavailable: %v", err)
	}
	f := &fakeValkey{ln: ln, data: map[string]string{}, password: password}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns++
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := f.password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		cmd := strings.ToUpper(args[0])
		if !authed && cmd != "AUTH" {
			fmt.Fprint(conn, "-NOAUTH Authentication required.\r\n")
			continue
		}
		f.mu.Lock()
		switch cmd {
		case "PING":
			fmt.Fprint(conn, "+PONG\r\n")
		case "AUTH":
			if args[len(args)-1] == f.password {
				authed = true
				fmt.Fprint(conn, "+OK\r\n")
			} else {
				fmt.Fprint(conn, "-WRONGPASS invalid password\r\n")
			}
		case "GET":
			if v, ok := f.data[args[1]]; ok {
				fmt.Fprintf(conn, "$%d\r\n%s\r\n", len(v), v)
			} else {
				fmt.Fprint(conn, "$-1\r\n")
			}
		case "SET":
			nx := strings.EqualFold(args[len(args)-1], "NX")
			if _, exists := f.data[args[1]]; nx && exists {
				fmt.Fprint(conn, "$-1\r\n")
			} else {
				f.data[args[1]] = args[2]
				fmt.Fprint(conn, "+OK\r\n")
			}
		case "DEL":
			delete(f.data, args[1])
			fmt.Fprint(conn, ":1\r\n")
		default:
			fmt.Fprintf(conn, "-ERR unknown command '%s'\r\n", cmd)
		}
		f.mu.Unlock()
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sizeLine, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := startFakeValkey(t, "s3cret")
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String(), Password: "s3cret", DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := p.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("get: %q %v", got, err)
	}
	ok, err := p.SetNX(ctx, "k", []byte("v2"), time.Minute)
	if err != nil || ok {
		t.Fatalf("SetNX on existing key: ok=%v err=%v", ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, err = p.SetNX(ctx, "k", []byte("v3"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX after delete: ok=%v err=%v", ok, err)
	}

	srv.mu.Lock()
	conns := srv.conns
	srv.mu.Unlock()
	if conns != 1 {
		t.Fatalf("expected pooled connection reuse, server saw %d connections", conns)
	}
}

func TestValkeyProviderBadPassword(t *testing.T) {
	srv := startFakeValkey(t, "s3cret")
	if _, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String(), Password: "nope", DialTimeout: time.Second}); err == nil {
		t.Fatalf("expected auth failure")
	}
}

func TestValkeyProviderClosed(t *testing.T) {
	srv := startFakeValkey(t, "")
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.ln.Addr().String()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_ = p.Close()
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestValkeyRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}
