package speech

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// VoskCapability streams audio to a Vosk server over its websocket API.
type VoskCapability struct {
	ServerURL string
	Dialer    *websocket.Dialer
}

func NewVoskCapability(serverURL string) *VoskCapability {
	return &VoskCapability{ServerURL: serverURL, Dialer: websocket.DefaultDialer}
}

func (c *VoskCapability) NewRecognizer(cfg Config) (Recognizer, error) {
	if c == nil || c.ServerURL == "" {
		return nil, ErrUnsupportedCapability
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 8000
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &voskRecognizer{
		url:      fmt.Sprintf("%s/ws?sample_rate=%d", c.ServerURL, rate),
		dialer:   dialer,
		events:   newEventStream(),
		readDone: make(chan struct{}),
	}, nil
}

type voskRecognizer struct {
	url    string
	dialer *websocket.Dialer
	events *eventStream

	writeMu  sync.Mutex
	conn     *websocket.Conn
	stopping bool
	readDone chan struct{}
	results  resultList
}

func (r *voskRecognizer) Events() <-chan Event { return r.events.ch }

func (r *voskRecognizer) Start() error {
	conn, _, err := r.dialer.Dial(r.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Vosk server: %w", err)
	}

	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()

	r.events.emit(Event{Type: EventStart})
	go r.readLoop()
	return nil
}

func (r *voskRecognizer) Feed(pcm []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.conn == nil || r.stopping {
		return nil
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("failed to send audio to Vosk: %w", err)
	}
	return nil
}

func (r *voskRecognizer) Stop() error {
	r.writeMu.Lock()
	if r.conn == nil || r.stopping {
		r.writeMu.Unlock()
		return nil
	}
	r.stopping = true
	conn := r.conn
	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	r.writeMu.Unlock()

	go func() {
		select {
		case <-r.readDone:
		case <-time.After(drainTimeout):
		}
		conn.Close()
	}()

	if err != nil {
		return fmt.Errorf("failed to send EOF to Vosk: %w", err)
	}
	return nil
}

func (r *voskRecognizer) readLoop() {
	defer r.events.end()
	defer close(r.readDone)
	defer r.conn.Close()

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			r.writeMu.Lock()
			stopping := r.stopping
			r.writeMu.Unlock()
			if !stopping && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.events.emit(Event{Type: EventError, Err: fmt.Errorf("vosk: %w", err)})
			}
			return
		}

		var res voskResult
		if err := json.Unmarshal(message, &res); err != nil {
			continue
		}

		switch {
		case res.Text != "":
			r.events.emit(r.results.final(res.Text))
		case res.Partial != "":
			r.events.emit(r.results.partial(res.Partial))
		}
	}
}
