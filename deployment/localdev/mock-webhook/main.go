package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"
)

type slackMessage struct {
	Text string `json:"text"`
}

type receivedMessage struct {
	ReceivedAt time.Time `json:"received_at"`
	Text       string    `json:"text"`
}

// inbox keeps the most recent messages so local runs can inspect what the watcher posted.
type inbox struct {
	mu       sync.Mutex
	limit    int
	messages []receivedMessage
}

func (i *inbox) add(msg receivedMessage) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = append(i.messages, msg)
	if len(i.messages) > i.limit {
		i.messages = i.messages[len(i.messages)-i.limit:]
	}
}

func (i *inbox) list() []receivedMessage {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]receivedMessage(nil), i.messages...)
}

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	failEvery := flag.Int("fail-every", 0, "answer every Nth post with 500 to exercise the outbox fallback")
	flag.Parse()

	box := &inbox{limit: 100}
	var (
		countMu sync.Mutex
		count   int
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/services/hook", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var msg slackMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.Text == "" {
			http.Error(w, "invalid_payload", http.StatusBadRequest)
			return
		}

		countMu.Lock()
		count++
		n := count
		countMu.Unlock()
		if *failEvery > 0 && n%*failEvery == 0 {
			log.Printf("rejecting post #%d", n)
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}

		box.add(receivedMessage{ReceivedAt: time.Now().UTC(), Text: msg.Text})
		log.Printf("post #%d:\n%s", n, msg.Text)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, box.list())
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("mock webhook listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("mock webhook exited: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
