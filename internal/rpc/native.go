package rpc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Browser native messaging limits
const (
	maxNativeOutgoing = 1 << 20
	maxNativeIncoming = 64 << 20
)

// ErrMessageTooLarge is returned for frames over the native messaging limits
var ErrMessageTooLarge = errors.New("native message too large")

// ReadMessage reads one length-prefixed frame: a uint32 byte count in
// little-endian order followed by that many bytes of JSON.
func ReadMessage(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > maxNativeIncoming {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}
	return buf, nil
}

// WriteMessage writes data as one length-prefixed frame
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > maxNativeOutgoing {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ServeNative answers framed requests from r on w until r reaches EOF or
// ctx is done. Requests are handled one at a time in arrival order.
func ServeNative(ctx context.Context, r io.Reader, w io.Writer, caller Caller) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		frame, err := ReadMessage(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("native messaging input closed")
				return nil
			}
			return err
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(frame, &req); err != nil {
			resp = Response{Success: false, Error: "Invalid JSON"}
		} else if resp, err = caller.Call(ctx, req); err != nil {
			resp = Response{ID: req.ID, Success: false, Error: err.Error()}
		}

		if err := writeResponse(w, resp); err != nil {
			return err
		}
	}
}

// writeResponse encodes resp, replacing it with an error reply when it
// does not fit in one outgoing frame.
func writeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	if len(data) > maxNativeOutgoing {
		slog.Warn("response exceeds native messaging limit", "id", resp.ID, "bytes", len(data))
		data, err = json.Marshal(Response{
			ID:      resp.ID,
			Success: false,
			Error:   "Response too large for native messaging; use the HTTP endpoint or export instead",
		})
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}

	return WriteMessage(w, data)
}
