package speech

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	AssemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"

	assemblyAISampleRate = 16000
	assemblyAISendEvery  = 50 * time.Millisecond

	// At 16kHz 16-bit mono: 50ms is 1600 bytes, 950ms is 30400 bytes.
	minChunkSize = 1600
	maxChunkSize = 30400
)

type assemblyAIMessage struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
}

// AssemblyAICapability uses AssemblyAI's streaming API. Only formatted
// turns are treated as final.
type AssemblyAICapability struct {
	APIKey   string
	Endpoint string
	Dialer   *websocket.Dialer
}

func NewAssemblyAICapability(apiKey string) *AssemblyAICapability {
	return &AssemblyAICapability{
		APIKey:   apiKey,
		Endpoint: AssemblyAIWebSocketURL,
		Dialer:   websocket.DefaultDialer,
	}
}

func (c *AssemblyAICapability) NewRecognizer(cfg Config) (Recognizer, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrUnsupportedCapability
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = AssemblyAIWebSocketURL
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 8000
	}
	return &assemblyAIRecognizer{
		url:         fmt.Sprintf("%s?sample_rate=%d&format_turns=true", endpoint, assemblyAISampleRate),
		apiKey:      c.APIKey,
		dialer:      dialer,
		inputRate:   rate,
		events:      newEventStream(),
		audioBuffer: make([]byte, 0, 8000),
		stopSending: make(chan struct{}),
		readDone:    make(chan struct{}),
	}, nil
}

type assemblyAIRecognizer struct {
	url       string
	apiKey    string
	dialer    *websocket.Dialer
	inputRate int
	events    *eventStream

	// writeMu guards conn writes and the stopping flag.
	writeMu  sync.Mutex
	conn     *websocket.Conn
	stopping bool

	bufferMu    sync.Mutex
	audioBuffer []byte

	stopSending chan struct{}
	senderWG    sync.WaitGroup
	readDone    chan struct{}
	results     resultList
}

func (r *assemblyAIRecognizer) Events() <-chan Event { return r.events.ch }

func (r *assemblyAIRecognizer) Start() error {
	header := http.Header{}
	header.Add("Authorization", r.apiKey)

	conn, _, err := r.dialer.Dial(r.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()

	go r.readLoop()
	r.senderWG.Add(1)
	go r.audioSender()
	return nil
}

func (r *assemblyAIRecognizer) Feed(pcm []byte) error {
	data := pcm
	if r.inputRate == 8000 {
		data = resample8to16(pcm)
	}

	r.bufferMu.Lock()
	r.audioBuffer = append(r.audioBuffer, data...)
	r.bufferMu.Unlock()
	return nil
}

func (r *assemblyAIRecognizer) Stop() error {
	r.writeMu.Lock()
	if r.conn == nil || r.stopping {
		r.writeMu.Unlock()
		return nil
	}
	r.stopping = true
	conn := r.conn
	r.writeMu.Unlock()

	close(r.stopSending)
	r.senderWG.Wait()

	r.bufferMu.Lock()
	rest := r.audioBuffer
	r.audioBuffer = nil
	r.bufferMu.Unlock()

	r.writeMu.Lock()
	if len(rest) > 0 {
		_ = conn.WriteMessage(websocket.BinaryMessage, rest)
	}
	msg, _ := json.Marshal(assemblyAIMessage{Type: "Terminate"})
	err := conn.WriteMessage(websocket.TextMessage, msg)
	r.writeMu.Unlock()

	go func() {
		select {
		case <-r.readDone:
		case <-time.After(drainTimeout):
		}
		conn.Close()
	}()

	if err != nil {
		return fmt.Errorf("failed to send terminate to AssemblyAI: %w", err)
	}
	return nil
}

func (r *assemblyAIRecognizer) audioSender() {
	defer r.senderWG.Done()

	ticker := time.NewTicker(assemblyAISendEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sendBufferedAudio()
		case <-r.stopSending:
			r.sendBufferedAudio()
			return
		}
	}
}

func (r *assemblyAIRecognizer) sendBufferedAudio() {
	r.bufferMu.Lock()
	defer r.bufferMu.Unlock()

	for len(r.audioBuffer) >= minChunkSize {
		size := len(r.audioBuffer)
		if size > maxChunkSize {
			size = maxChunkSize
		}

		r.writeMu.Lock()
		err := r.conn.WriteMessage(websocket.BinaryMessage, r.audioBuffer[:size])
		r.writeMu.Unlock()
		if err != nil {
			r.audioBuffer = r.audioBuffer[:0]
			return
		}
		r.audioBuffer = r.audioBuffer[size:]
	}
}

func (r *assemblyAIRecognizer) readLoop() {
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
				r.events.emit(Event{Type: EventError, Err: fmt.Errorf("assemblyai: %w", err)})
			}
			return
		}

		var msg assemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Begin":
			r.events.emit(Event{Type: EventStart})
		case "Turn":
			if msg.Transcript == "" {
				continue
			}
			if msg.TurnIsFormatted {
				r.events.emit(r.results.final(msg.Transcript))
			} else {
				r.events.emit(r.results.partial(msg.Transcript))
			}
		case "Termination":
			return
		}
	}
}

// resample8to16 doubles the sample rate of 16-bit little-endian PCM using
// linear interpolation.
func resample8to16(input []byte) []byte {
	samples := make([]int16, len(input)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}

	up := make([]int16, len(samples)*2)
	for i := 0; i < len(samples)-1; i++ {
		up[i*2] = samples[i]
		up[i*2+1] = int16((int32(samples[i]) + int32(samples[i+1])) / 2)
	}
	if n := len(samples); n > 0 {
		up[len(up)-2] = samples[n-1]
		up[len(up)-1] = samples[n-1]
	}

	out := make([]byte, len(up)*2)
	for i, s := range up {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}
