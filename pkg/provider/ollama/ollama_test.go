package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "kayıt dondurma" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := New(srv.URL, "nomic-embed-text", "llama3")
	vec, err := c.Embed(context.Background(), "kayıt dondurma")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "missing", "llama3")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestGenerateStreamsNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("generate request not streaming")
		}
		if !strings.Contains(req.Prompt, "Kayıt dondurma iki dönemdir.") {
			t.Error("context missing from prompt")
		}
		fmt.Fprintln(w, `{"response":"Kayıt ","done":false}`)
		fmt.Fprintln(w, `{"response":"dondurma iki dönemdir.","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "nomic-embed-text", "llama3")
	chunks := []provider.ContextChunk{{Text: "Kayıt dondurma iki dönemdir.", Source: "yönetmelik.txt"}}
	stream, err := c.Generate(context.Background(), "Kayıt dondurma süresi nedir?", chunks, provider.ModeStrict)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		seg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		b.WriteString(seg)
	}
	if b.String() != "Kayıt dondurma iki dönemdir." {
		t.Errorf("answer = %q", b.String())
	}

	// After EOF the stream stays at EOF.
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("post-EOF recv err = %v", err)
	}
}

func TestGenerateFinalChunkWithText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"response":"tamamı tek parçada","done":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "e", "g")
	stream, err := c.Generate(context.Background(), "soru", nil, provider.ModeWeb)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer stream.Close()

	seg, err := stream.Recv()
	if err != nil || seg != "tamamı tek parçada" {
		t.Fatalf("recv = (%q, %v)", seg, err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestIsChitchat(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"YES", true},
		{"yes.", true},
		{"NO", false},
		{"No, this is a knowledge query", false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req generateReq
			json.NewDecoder(r.Body).Decode(&req)
			if req.Stream {
				t.Error("intent request must not stream")
			}
			json.NewEncoder(w).Encode(generateResp{Response: tc.reply, Done: true})
		}))

		c := New(srv.URL, "e", "llama3")
		got, err := c.IsChitchat(context.Background(), "selam")
		srv.Close()
		if err != nil {
			t.Fatalf("intent: %v", err)
		}
		if got != tc.want {
			t.Errorf("reply %q classified as %v, want %v", tc.reply, got, tc.want)
		}
	}
}
