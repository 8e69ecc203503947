// Command mockengine is a stand-in recognition engine for local development.
// It accepts the multipart upload the service sends and replies with a fixed
// transcript.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type transcribeResponse struct {
	Results []string `json:"results"`
}

var (
	replyText = flag.String("text", "this is a mock transcription", "Transcript text to return")
	delay     = flag.Duration("delay", 200*time.Millisecond, "Simulated processing time per request")
	fail      = flag.Bool("fail", false, "Return HTTP 500 for every request")
	addr      = flag.String("addr", ":9000", "Listen address")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	model := r.FormValue("model")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("transcription request: file=%s size=%d model=%s language=%s",
		header.Filename, len(audioData), model, language)

	// Simulate processing time
	time.Sleep(*delay)

	if *fail {
		http.Error(w, "engine unavailable", http.StatusInternalServerError)
		log.Printf("returned simulated failure")
		return
	}

	response := transcribeResponse{Results: []string{*replyText}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("transcription response sent: %q", *replyText)
}

func main() {
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	log.Printf("mock engine starting on %s", *addr)
	log.Printf("endpoint: http://localhost%s/transcribe", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
