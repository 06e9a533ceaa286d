package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/meetingbot/core/internal/models"
)

// DeepgramProvider streams audio to Deepgram's live transcription endpoint
// over a websocket, the same transport internal/realtime uses for its own
// fan-out, framed per Deepgram's binary-audio-in / JSON-event-out
// protocol instead of our own Envelope shape.
type DeepgramProvider struct {
	BaseURL string // defaults to wss://api.deepgram.com/v1/listen
}

// NewDeepgramProvider builds a DeepgramProvider against the default
// endpoint.
func NewDeepgramProvider() *DeepgramProvider {
	return &DeepgramProvider{BaseURL: "wss://api.deepgram.com/v1/listen"}
}

func (p *DeepgramProvider) Open(ctx context.Context, apiKey, language string) (Session, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram base url: %w", err)
	}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "48000")
	q.Set("channels", "1")
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Token " + apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open deepgram session: %w", err)
	}

	s := &deepgramSession{conn: conn, events: make(chan Event, 32)}
	go s.readLoop()
	return s, nil
}

type deepgramSession struct {
	conn   *websocket.Conn
	events chan Event
}

func (s *deepgramSession) Send(ctx context.Context, pcm []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		return fmt.Errorf("failed to send audio to deepgram: %w", err)
	}
	return nil
}

func (s *deepgramSession) Events() <-chan Event {
	return s.events
}

func (s *deepgramSession) Close(ctx context.Context) error {
	// Deepgram finalizes the in-flight utterance on receipt of an empty
	// binary frame, then closes the socket server-side once it's done.
	_ = s.conn.Write(ctx, websocket.MessageBinary, []byte{})
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// deepgramMessage mirrors the subset of Deepgram's streaming response
// shape the Coordinator cares about.
type deepgramMessage struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) readLoop() {
	defer close(s.events)
	ctx := context.Background()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.events <- Event{Type: EventError, Err: err}
			return
		}
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.events <- Event{Type: EventError, Err: fmt.Errorf("failed to decode deepgram message: %w", err)}
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]
		words := make([]models.Word, len(alt.Words))
		for i, w := range alt.Words {
			words[i] = models.Word{
				Word:       w.Word,
				StartMS:    int64(w.Start * 1000),
				EndMS:      int64(w.End * 1000),
				Confidence: w.Confidence,
			}
		}
		eventType := EventPartial
		if msg.IsFinal {
			eventType = EventFinal
		}
		s.events <- Event{Type: eventType, Transcript: alt.Transcript, Words: words}
	}
}
