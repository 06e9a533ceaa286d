package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/meetingbot/core/internal/models"
)

// transcribeMethod is the bidirectional-streaming RPC every gRPC ASR
// backend behind GRPCProvider is expected to expose.
const transcribeMethod = "/meetingbot.asr.v1.ASRService/Transcribe"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets GRPCProvider speak gRPC's framing (length-prefixed
// messages over HTTP/2) without a compiled .proto schema: every ASR
// backend wired up behind this provider exchanges the same small JSON
// request/response shape below instead of a generated protobuf message.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type grpcASRChunk struct {
	PCM      []byte `json:"pcm"`
	Language string `json:"language,omitempty"`
}

type grpcASRResult struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	Words      []struct {
		Word       string  `json:"word"`
		StartMS    int64   `json:"start_ms"`
		EndMS      int64   `json:"end_ms"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
	Error string `json:"error,omitempty"`
}

// GRPCProvider streams audio to a gRPC ASR endpoint using bidirectional
// streaming, for transcription backends that expose a gRPC interface
// instead of Deepgram's websocket protocol: grpc.NewClient with insecure
// transport credentials (the ASR backend is expected to run as a sidecar
// or on a private network), plus a goroutine forwarding stream.Recv
// results onto a channel.
type GRPCProvider struct {
	conn *grpc.ClientConn
}

// NewGRPCProvider dials addr.
func NewGRPCProvider(addr string) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ASR client for %s: %w", addr, err)
	}
	return &GRPCProvider{conn: conn}, nil
}

// Close releases the gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

func (p *GRPCProvider) Open(ctx context.Context, apiKey, language string) (Session, error) {
	if apiKey != "" {
		ctx = withBearer(ctx, apiKey)
	}
	stream, err := p.conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Transcribe",
		ClientStreams: true,
		ServerStreams: true,
	}, transcribeMethod)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASR stream: %w", err)
	}

	s := &grpcSession{stream: stream, language: language, events: make(chan Event, 32)}
	go s.readLoop()
	return s, nil
}

type grpcSession struct {
	stream   grpc.ClientStream
	language string
	events   chan Event
}

func (s *grpcSession) Send(ctx context.Context, pcm []byte) error {
	if err := s.stream.SendMsg(&grpcASRChunk{PCM: pcm, Language: s.language}); err != nil {
		return fmt.Errorf("failed to send audio to ASR stream: %w", err)
	}
	return nil
}

func (s *grpcSession) Events() <-chan Event {
	return s.events
}

func (s *grpcSession) Close(ctx context.Context) error {
	return s.stream.CloseSend()
}

func (s *grpcSession) readLoop() {
	defer close(s.events)
	for {
		var resp grpcASRResult
		if err := s.stream.RecvMsg(&resp); err != nil {
			if err != io.EOF {
				s.events <- Event{Type: EventError, Err: err}
			}
			return
		}
		if resp.Error != "" {
			s.events <- Event{Type: EventError, Err: fmt.Errorf("%s", resp.Error)}
			continue
		}
		words := make([]models.Word, len(resp.Words))
		for i, w := range resp.Words {
			words[i] = models.Word{Word: w.Word, StartMS: w.StartMS, EndMS: w.EndMS, Confidence: w.Confidence}
		}
		eventType := EventPartial
		if resp.IsFinal {
			eventType = EventFinal
		}
		s.events <- Event{Type: eventType, Transcript: resp.Transcript, Words: words}
	}
}
