package tcp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
)

// StreamReader reads line-oriented or exact-length records from an open
// connection, keeping partial reads buffered between calls.
type StreamReader struct {
	conn      net.Conn
	buf       []byte
	chunkSize int
}

func NewStreamReader(conn net.Conn) *StreamReader {
	return &StreamReader{
		conn:      conn,
		chunkSize: 1024,
	}
}

// ReadLine returns the next newline-terminated line without its line ending.
// At end of stream it returns whatever remains buffered.
func (r *StreamReader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := string(r.buf[:i])
			r.buf = r.buf[i+1:]
			return strings.TrimSuffix(line, "\r"), nil
		}
		n, err := r.fill(r.chunkSize)
		if n == 0 {
			line := string(r.buf)
			r.buf = nil
			return line, err
		}
	}
}

// ReadBytes returns exactly count bytes, or fewer when the peer closes first.
func (r *StreamReader) ReadBytes(count int) ([]byte, error) {
	for len(r.buf) < count {
		want := count - len(r.buf)
		if want > 4096 {
			want = 4096
		}
		n, _ := r.fill(want)
		if n == 0 {
			break
		}
	}

	if count > len(r.buf) {
		count = len(r.buf)
	}
	result := r.buf[:count]
	r.buf = r.buf[count:]
	return result, nil
}

// fill appends up to max bytes from the connection into the buffer. End of
// stream reports zero bytes and no error.
func (r *StreamReader) fill(max int) (int, error) {
	chunk := make([]byte, max)
	n, err := r.conn.Read(chunk)
	r.buf = append(r.buf, chunk[:n]...)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}
