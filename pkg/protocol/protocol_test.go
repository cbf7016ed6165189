package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

func frame(body []byte) []byte {
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	return buf
}

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer
	want := &pb.Message{
		ReqID:    "7",
		JoinRoom: &pb.JoinRoom{RoomID: "r-abc"},
	}
	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	length := binary.BigEndian.Uint32(buf.Bytes()[:4])
	if int(length) != buf.Len()-4 {
		t.Fatalf("length prefix = %d, body = %d", length, buf.Len()-4)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRejectsOversized(t *testing.T) {
	msg := &pb.Message{Response: &pb.Response{Status: pb.StatusOK, Msg: strings.Repeat("x", MaxMessage)}}
	err := WriteMessage(io.Discard, msg)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("WriteMessage oversized: got %v, want ErrProtocol", err)
	}
}

func TestReadRejectsBadFrames(t *testing.T) {
	oversized := make([]byte, 4)
	binary.BigEndian.PutUint32(oversized, MaxMessage+1)

	tcases := map[string][]byte{
		"zero_length":     frame(nil),
		"oversized":       oversized,
		"short_header":    {0, 0},
		"short_body":      frame([]byte(`{"ping":{}}`))[:8],
		"malformed_json":  frame([]byte(`{"ping":`)),
		"not_json_object": frame([]byte(`hello`)),
	}
	for name, data := range tcases {
		t.Run(name, func(t *testing.T) {
			msg, err := ReadMessage(bytes.NewReader(data))
			if msg != nil {
				t.Fatalf("ReadMessage returned a message for a bad frame: %+v", msg)
			}
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("ReadMessage: got %v, want ErrProtocol", err)
			}
		})
	}
}

func TestReadCleanEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("ReadMessage on empty stream: got %v, want io.EOF", err)
	}
}

func TestReadAcceptsMaxSize(t *testing.T) {
	// {"req_id":"aaa..."} padded to exactly MaxMessage bytes.
	prefix, suffix := `{"req_id":"`, `"}`
	body := prefix + strings.Repeat("a", MaxMessage-len(prefix)-len(suffix)) + suffix
	msg, err := ReadMessage(bytes.NewReader(frame([]byte(body))))
	if err != nil {
		t.Fatalf("ReadMessage at max size: %v", err)
	}
	if len(msg.ReqID) != MaxMessage-len(prefix)-len(suffix) {
		t.Fatalf("ReqID length = %d", len(msg.ReqID))
	}
}

func TestStreamRoundTrip(t *testing.T) {
	sizes := []int{0, 1, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17}
	for _, n := range sizes {
		payload := make([]byte, n)
		if _, err := rand.Read(payload); err != nil {
			t.Fatalf("rand: %v", err)
		}

		var wire bytes.Buffer
		if err := SendStream(&wire, bytes.NewReader(payload), int64(n)); err != nil {
			t.Fatalf("SendStream(%d): %v", n, err)
		}
		if wire.Len() != 8+n {
			t.Fatalf("wire length = %d, want %d", wire.Len(), 8+n)
		}

		var out bytes.Buffer
		got, err := RecvStream(&wire, &out, 0)
		if err != nil {
			t.Fatalf("RecvStream(%d): %v", n, err)
		}
		if got != int64(n) {
			t.Fatalf("RecvStream returned %d bytes, want %d", got, n)
		}
		if !bytes.Equal(out.Bytes(), payload) {
			t.Fatalf("payload mismatch for size %d", n)
		}
	}
}

func TestRecvStreamShort(t *testing.T) {
	var wire bytes.Buffer
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], 100)
	wire.Write(hdr[:])
	wire.Write(make([]byte, 40))

	got, err := RecvStream(&wire, io.Discard, 0)
	if !errors.Is(err, ErrProtocol) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("RecvStream short: got %v", err)
	}
	if got != 40 {
		t.Fatalf("RecvStream short: got %d bytes, want 40", got)
	}
}

func TestRecvStreamLimit(t *testing.T) {
	var wire bytes.Buffer
	if err := SendStream(&wire, bytes.NewReader(make([]byte, 10)), 10); err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	if _, err := RecvStream(&wire, io.Discard, 5); !errors.Is(err, ErrProtocol) {
		t.Fatalf("RecvStream over limit: got %v, want ErrProtocol", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "game.py")
	payload := make([]byte, 2*ChunkSize+5)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if err := os.WriteFile(src, payload, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var wire bytes.Buffer
	sent, err := SendFile(&wire, src)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if sent != int64(len(payload)) {
		t.Fatalf("SendFile sent %d, want %d", sent, len(payload))
	}

	dst := filepath.Join(dir, "copy.py")
	if _, err := RecvFile(&wire, dst, 0); err != nil {
		t.Fatalf("RecvFile: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("file contents differ after round trip")
	}
}

func TestRecvFileShortLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	var wire bytes.Buffer
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], 50)
	wire.Write(hdr[:])
	wire.Write(make([]byte, 10))

	dst := filepath.Join(dir, "partial.bin")
	if _, err := RecvFile(&wire, dst, 0); err == nil {
		t.Fatal("RecvFile: expected error for truncated stream")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after failed transfer, found %d entries", len(entries))
	}
}

func TestMessageRequest(t *testing.T) {
	msg := pb.NewRequest("1", &pb.StartGame{RoomID: "r-1"})
	req, err := msg.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sg, ok := req.(*pb.StartGame); !ok || sg.RoomID != "r-1" {
		t.Fatalf("Request = %#v, want *pb.StartGame{r-1}", req)
	}

	if _, err := (&pb.Message{}).Request(); !errors.Is(err, pb.ErrNoRequest) {
		t.Fatalf("empty message: got %v, want ErrNoRequest", err)
	}
	both := &pb.Message{Ping: &pb.Ping{}, Quit: &pb.Quit{}}
	if _, err := both.Request(); !errors.Is(err, pb.ErrMultipleRequests) {
		t.Fatalf("two requests: got %v, want ErrMultipleRequests", err)
	}
}
