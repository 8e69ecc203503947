package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/skypro1111/wyoming-asr-service/internal/audio"
	"github.com/skypro1111/wyoming-asr-service/internal/config"
	"github.com/skypro1111/wyoming-asr-service/internal/protocol"
	"github.com/skypro1111/wyoming-asr-service/internal/session"
)

// fakeTranscriber returns a fixed transcript for every utterance
type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte, format audio.Format, model, language string, options map[string]config.OptionValue) (string, error) {
	return f.text, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T, cfg *config.ServerConfig, transcriber session.Transcriber) *Server {
	t.Helper()

	if cfg == nil {
		cfg = &config.ServerConfig{
			ListenURI:      "tcp://127.0.0.1:0",
			ReadBufferSize: 4096,
			MaxConnections: 4,
		}
	}

	sessionCfg := session.Config{Model: "moonshine/tiny", Language: "en"}

	s := New(cfg, sessionCfg, transcriber, testLogger(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	return s
}

func dialTestServer(t *testing.T, s *Server) net.Conn {
	t.Helper()

	conn, err := net.Dial(s.Addr().Network(), s.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestServerDescribe(t *testing.T) {
	s := startTestServer(t, nil, &fakeTranscriber{})
	conn := dialTestServer(t, s)

	writer := protocol.NewWriter(conn)
	reader := protocol.NewReader(conn, 4096)

	if err := writer.WriteEvent(&protocol.Event{Type: protocol.EventDescribe}); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}

	reply, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if reply.Type != protocol.EventInfo {
		t.Fatalf("reply type = %q", reply.Type)
	}

	var info protocol.Info
	if err := json.Unmarshal(reply.Data, &info); err != nil {
		t.Fatalf("info data does not decode: %v", err)
	}
	if len(info.ASR) != 1 {
		t.Errorf("asr programs = %d", len(info.ASR))
	}
}

func TestServerTranscriptionFlow(t *testing.T) {
	s := startTestServer(t, nil, &fakeTranscriber{text: "open the garage"})
	conn := dialTestServer(t, s)

	writer := protocol.NewWriter(conn)
	reader := protocol.NewReader(conn, 4096)

	startData, _ := json.Marshal(protocol.AudioStart{Rate: 16000, Width: 2, Channels: 1})

	events := []*protocol.Event{
		{Type: protocol.EventTranscribe},
		{Type: protocol.EventAudioStart, Data: startData},
		{Type: protocol.EventAudioChunk, Payload: make([]byte, 8000)},
		{Type: protocol.EventAudioChunk, Payload: make([]byte, 8000)},
		{Type: protocol.EventAudioStop},
	}

	for _, e := range events {
		if err := writer.WriteEvent(e); err != nil {
			t.Fatalf("WriteEvent %s failed: %v", e.Type, err)
		}
	}

	reply, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}

	transcript, err := protocol.ParseTranscript(reply)
	if err != nil {
		t.Fatalf("reply is not a transcript: %v", err)
	}
	if transcript.Text != "open the garage" {
		t.Errorf("text = %q", transcript.Text)
	}
}

func TestServerSurvivesMalformedHeader(t *testing.T) {
	s := startTestServer(t, nil, &fakeTranscriber{})
	conn := dialTestServer(t, s)

	// A framed-but-garbage header must not drop the connection
	if _, err := conn.Write([]byte("{not json}\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	writer := protocol.NewWriter(conn)
	reader := protocol.NewReader(conn, 4096)

	if err := writer.WriteEvent(&protocol.Event{Type: protocol.EventDescribe}); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}

	reply, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("connection did not survive malformed header: %v", err)
	}
	if reply.Type != protocol.EventInfo {
		t.Errorf("reply type = %q", reply.Type)
	}

	stats := s.GetStatistics()
	if stats.DecodeErrors != 1 {
		t.Errorf("decode errors = %d, want 1", stats.DecodeErrors)
	}
}

func TestServerConnectionLimit(t *testing.T) {
	cfg := &config.ServerConfig{
		ListenURI:      "tcp://127.0.0.1:0",
		ReadBufferSize: 4096,
		MaxConnections: 1,
	}
	s := startTestServer(t, cfg, &fakeTranscriber{})

	first := dialTestServer(t, s)

	// A completed round trip proves the first session is registered
	writer := protocol.NewWriter(first)
	reader := protocol.NewReader(first, 4096)
	if err := writer.WriteEvent(&protocol.Event{Type: protocol.EventDescribe}); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}
	if _, err := reader.ReadEvent(); err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}

	second := dialTestServer(t, s)

	// The refused connection is closed without any reply
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Error("expected refused connection to be closed")
	}
}

func TestServerUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "asr.sock")
	cfg := &config.ServerConfig{
		ListenURI:      "unix://" + socketPath,
		ReadBufferSize: 4096,
		MaxConnections: 4,
	}
	s := startTestServer(t, cfg, &fakeTranscriber{})
	conn := dialTestServer(t, s)

	writer := protocol.NewWriter(conn)
	reader := protocol.NewReader(conn, 4096)

	if err := writer.WriteEvent(&protocol.Event{Type: protocol.EventDescribe}); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}

	reply, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if reply.Type != protocol.EventInfo {
		t.Errorf("reply type = %q", reply.Type)
	}
}

func TestServerMultipleConnections(t *testing.T) {
	s := startTestServer(t, nil, &fakeTranscriber{text: "shared engine"})

	for i := 0; i < 3; i++ {
		conn := dialTestServer(t, s)

		writer := protocol.NewWriter(conn)
		reader := protocol.NewReader(conn, 4096)

		if err := writer.WriteEvent(&protocol.Event{Type: protocol.EventDescribe}); err != nil {
			t.Fatalf("conn %d: WriteEvent failed: %v", i, err)
		}
		if _, err := reader.ReadEvent(); err != nil {
			t.Fatalf("conn %d: ReadEvent failed: %v", i, err)
		}
	}

	stats := s.GetStatistics()
	if stats.ConnectionsTotal != 3 {
		t.Errorf("connections total = %d, want 3", stats.ConnectionsTotal)
	}
}

func TestListenURIParsing(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"tcp ephemeral", "tcp://127.0.0.1:0", false},
		{"bad scheme", "udp://127.0.0.1:4444", true},
		{"unix without path", "unix://", true},
		{"not a URI", "::::", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener, _, err := listen(tt.uri)
			if listener != nil {
				listener.Close()
			}

			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
