package speech

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeVosk answers each audio frame with a partial and the EOF message
// with a final result, then closes.
func fakeVosk(t *testing.T, gotRate *atomic.Value) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRate.Store(r.URL.Query().Get("sample_rate"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && strings.Contains(string(msg), "eof") {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"text": "hello world"}`))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"partial": "hello"}`))
		}
	}))
}

func TestVoskRecognizer(t *testing.T) {
	var rate atomic.Value
	srv := fakeVosk(t, &rate)
	defer srv.Close()

	capability := NewVoskCapability("ws" + strings.TrimPrefix(srv.URL, "http"))
	s := NewCaptureSession(capability, Options{SampleRate: 8000})

	var partials, ends int32
	ok, err := s.Start(func(final, interim string) {
		if interim == "hello" {
			atomic.AddInt32(&partials, 1)
		}
	}, func() { atomic.AddInt32(&ends, 1) })
	if !ok || err != nil {
		t.Fatalf("Start() = %v, %v", ok, err)
	}

	if err := s.Feed(make([]byte, 320)); err != nil {
		t.Fatalf("Feed() err = %v", err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&partials) == 1 })

	s.Stop()
	s.Wait()

	if got := s.Transcript(); got.FinalText != "hello world" || got.InterimText != "" {
		t.Errorf("Transcript() = %+v", got)
	}
	if n := atomic.LoadInt32(&ends); n != 1 {
		t.Errorf("onEnd called %d times, want 1", n)
	}
	if got := rate.Load(); got != "8000" {
		t.Errorf("sample_rate = %v, want 8000", got)
	}
}

func TestVoskRecognizerDialFailure(t *testing.T) {
	capability := NewVoskCapability("ws://127.0.0.1:1")
	s := NewCaptureSession(capability, Options{})

	ok, err := s.Start(nil, nil)
	if ok || err != nil {
		t.Fatalf("Start() = %v, %v; want false, nil", ok, err)
	}
}
