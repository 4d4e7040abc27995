package whisper_test

import (
	"context"
	"encoding/binary"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arivox/arivox/pkg/provider/stt/whisper"
)

func TestNewServerRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewServer(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestServerTranscribeUploadsWAV(t *testing.T) {
	t.Parallel()

	var gotLanguage, gotModel string
	var gotWAV []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			t.Errorf("content type = %q (%v)", mt, err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				gotWAV = data
			case "language":
				gotLanguage = string(data)
			case "model":
				gotModel = string(data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" good afternoon"}`)
	}))
	defer srv.Close()

	s, err := whisper.NewServer(srv.URL,
		whisper.WithLanguage("de"),
		whisper.WithModel("base.en"),
	)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	pcm := make([]byte, 640)
	text, err := s.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " good afternoon" {
		t.Errorf("text = %q", text)
	}
	if gotLanguage != "de" {
		t.Errorf("language field = %q, want de", gotLanguage)
	}
	if gotModel != "base.en" {
		t.Errorf("model field = %q, want base.en", gotModel)
	}
	if len(gotWAV) != 44+len(pcm) {
		t.Fatalf("wav upload = %d bytes, want %d", len(gotWAV), 44+len(pcm))
	}
	if rate := binary.LittleEndian.Uint32(gotWAV[24:28]); rate != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", rate)
	}
}

func TestServerTranscribeNonOKStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := whisper.NewServer(srv.URL)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if _, err := s.Transcribe(context.Background(), make([]byte, 320)); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}
