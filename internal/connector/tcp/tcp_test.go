package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/databridge/databridge/internal/connector"
)

// fakePeer serves one connection with the given handler and returns the
// address to dial.
func fakePeer(t *testing.T, handle func(conn net.Conn)) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		handle(conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestFetch_ReadUntilClose(t *testing.T) {
	host, port := fakePeer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("hello "))
		_, _ = conn.Write([]byte("world"))
	})

	c := New()
	data, err := c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: host, Port: port},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("unexpected payload: %q", data)
	}
}

func TestFetch_SendThenRead(t *testing.T) {
	host, port := fakePeer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		if string(buf[:n]) == "PING\n" {
			_, _ = conn.Write([]byte("PONG"))
		}
	})

	c := New()
	data, err := c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: host, Port: port, SendData: "PING\n"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "PONG" {
		t.Errorf("expected PONG, got %q", data)
	}
}

func TestFetch_ExpectSize(t *testing.T) {
	host, port := fakePeer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("0123456789"))
		// keep the connection open; the reader must stop at expect_size
		time.Sleep(200 * time.Millisecond)
	})

	c := New()
	data, err := c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: host, Port: port, ExpectSize: 4},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "0123" {
		t.Errorf("expected first 4 bytes, got %q", data)
	}
}

func TestFetch_ExpectSizePartial(t *testing.T) {
	host, port := fakePeer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("abc"))
	})

	c := New()
	data, err := c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: host, Port: port, ExpectSize: 10},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// peer closed early: partial data, no error
	if string(data) != "abc" {
		t.Errorf("expected partial payload, got %q", data)
	}
}

func TestFetch_Delimiter(t *testing.T) {
	host, port := fakePeer(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("record-1\nrecord-2\n"))
		time.Sleep(200 * time.Millisecond)
	})

	c := New()
	data, err := c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: host, Port: port, Delimiter: "\n"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// the delimiter is included
	if string(data) != "record-1\n" {
		t.Errorf("expected first record, got %q", data)
	}
}

func TestFetch_DialFailure(t *testing.T) {
	// a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	c := New()
	_, err = c.Fetch(context.Background(), &connector.Config{
		Type: connector.TypeTCP,
		TCP:  &connector.TCPConfig{Host: addr.IP.String(), Port: addr.Port, Timeout: 1},
	})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if connector.KindOf(err) != connector.KindConnectionFailed {
		t.Errorf("expected CONNECTION_FAILED, got %s", connector.KindOf(err))
	}
}

func TestStreamReader_ReadLine(t *testing.T) {
	server, client := net.Pipe()
	go func() {
		_, _ = server.Write([]byte("first\r\nsecond\ntail"))
		_ = server.Close()
	}()

	r := NewStreamReader(client)
	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if line != "first" {
		t.Errorf("expected first (CR stripped), got %q", line)
	}

	line, _ = r.ReadLine()
	if line != "second" {
		t.Errorf("expected second, got %q", line)
	}

	// end of stream returns the unterminated remainder
	line, _ = r.ReadLine()
	if line != "tail" {
		t.Errorf("expected tail, got %q", line)
	}
}

func TestStreamReader_ReadBytes(t *testing.T) {
	server, client := net.Pipe()
	go func() {
		_, _ = server.Write([]byte("0123456789"))
		_ = server.Close()
	}()

	r := NewStreamReader(client)
	got, err := r.ReadBytes(4)
	if err != nil {
		t.Fatalf("read bytes: %v", err)
	}
	if string(got) != "0123" {
		t.Errorf("expected 0123, got %q", got)
	}

	got, _ = r.ReadBytes(20)
	if string(got) != "456789" {
		t.Errorf("expected remainder on close, got %q", got)
	}
}
