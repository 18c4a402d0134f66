package mail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileSender writes messages to disk as JSON instead of delivering them.
// It stands in for the SMTP relay during development and in tests.
type FileSender struct {
	Dir string
}

func (s FileSender) Send(msg Message) Result {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Result{Err: err}
	}

	payload := struct {
		To        string `json:"to"`
		Subject   string `json:"subject"`
		Text      string `json:"text,omitempty"`
		HTML      string `json:"html,omitempty"`
		CreatedAt string `json:"createdAt"`
	}{
		To:        msg.To,
		Subject:   msg.Subject,
		Text:      msg.Text,
		HTML:      msg.HTML,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Result{Err: err}
	}

	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), uuid.NewString())
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return Result{Err: err}
	}
	return Result{OK: true}
}
