package elevenlabs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arivox/arivox/pkg/provider/tts"
	"github.com/arivox/arivox/pkg/provider/tts/elevenlabs"
)

func TestSynthesizeSendsRequestAndReturnsAudio(t *testing.T) {
	t.Parallel()

	wantPCM := bytes.Repeat([]byte{0x01, 0x02}, 1600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/text-to-speech/voice-123" {
			t.Errorf("path = %s, want /v1/text-to-speech/voice-123", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_16000" {
			t.Errorf("output_format = %q, want pcm_16000", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "key-abc" {
			t.Errorf("xi-api-key = %q, want key-abc", got)
		}

		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "hello caller" {
			t.Errorf("text = %q, want %q", body.Text, "hello caller")
		}
		if body.ModelID == "" {
			t.Error("model_id missing from request")
		}

		w.Write(wantPCM)
	}))
	defer srv.Close()

	p, err := elevenlabs.New("key-abc", elevenlabs.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm, err := p.Synthesize(context.Background(), "hello caller", tts.Voice{ID: "voice-123"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(pcm, wantPCM) {
		t.Errorf("Synthesize returned %d bytes, want %d matching bytes", len(pcm), len(wantPCM))
	}
	if p.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", p.SampleRate())
	}
}

func TestSynthesizeNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"invalid voice"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := elevenlabs.New("bad-key", elevenlabs.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{ID: "v"}); err == nil {
		t.Fatal("Synthesize succeeded on HTTP 401, want error")
	}
}

func TestSynthesizeValidation(t *testing.T) {
	t.Parallel()

	p, err := elevenlabs.New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Error("Synthesize with empty voice ID succeeded")
	}
	if _, err := p.Synthesize(context.Background(), "", tts.Voice{ID: "v"}); err == nil {
		t.Error("Synthesize with empty text succeeded")
	}

	if _, err := elevenlabs.New(""); err == nil {
		t.Error("New with empty API key succeeded")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("path = %s, want /v1/voices", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"voices": []map[string]string{
				{"voice_id": "v1", "name": "Alice"},
				{"voice_id": "v2", "name": "Bob"},
			},
		})
	}))
	defer srv.Close()

	p, err := elevenlabs.New("key", elevenlabs.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "v1" || voices[1].Name != "Bob" {
		t.Errorf("ListVoices = %+v, want v1/Alice and v2/Bob", voices)
	}
}
