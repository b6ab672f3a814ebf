package speech

import (
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestResample8to16(t *testing.T) {
	in := make([]byte, 6)
	for i, v := range []int16{0, 100, -100} {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(v))
	}

	out := resample8to16(in)
	if len(out) != 12 {
		t.Fatalf("len = %d, want 12", len(out))
	}

	want := []int16{0, 50, 100, 0, -100, -100}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestAssemblyAIRequiresKey(t *testing.T) {
	_, err := (&AssemblyAICapability{}).NewRecognizer(Config{})
	if !errors.Is(err, ErrUnsupportedCapability) {
		t.Fatalf("err = %v, want ErrUnsupportedCapability", err)
	}
}

func TestAssemblyAIRecognizerURL(t *testing.T) {
	c := NewAssemblyAICapability("key")
	c.Endpoint = "ws://localhost:1234/v3/ws"
	rec, err := c.NewRecognizer(Config{SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	r := rec.(*assemblyAIRecognizer)
	if want := "ws://localhost:1234/v3/ws?sample_rate=16000&format_turns=true"; r.url != want {
		t.Errorf("url = %q, want %q", r.url, want)
	}
	if r.inputRate != 8000 {
		t.Errorf("inputRate = %d", r.inputRate)
	}
}

func TestAssemblyAIStopDropsSilentServer(t *testing.T) {
	var terminated atomic.Bool
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never answers Terminate.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "Terminate") {
				terminated.Store(true)
			}
		}
	}))
	defer srv.Close()

	c := NewAssemblyAICapability("key")
	c.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	rec, err := c.NewRecognizer(Config{SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Start(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop() err = %v", err)
	}

	deadline := time.After(drainTimeout + 2*time.Second)
	for {
		select {
		case ev, ok := <-rec.Events():
			if !ok {
				if !terminated.Load() {
					t.Error("server never received Terminate")
				}
				if elapsed := time.Since(start); elapsed > drainTimeout+time.Second {
					t.Errorf("stream closed after %v", elapsed)
				}
				return
			}
			if ev.Type == EventError {
				t.Errorf("unexpected error event after Stop: %v", ev.Err)
			}
		case <-deadline:
			t.Fatal("events not closed after the drain timeout")
		}
	}
}
