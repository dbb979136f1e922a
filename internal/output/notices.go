package output

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Notices writes transient transaction notices to the printer's error
// stream: one line per pending, success or error notice. JSON modes emit
// one object per line.
type Notices struct {
	P  Printer
	mu sync.Mutex
}

type noticeLine struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"notice"`
	Key     string    `json:"key"`
	Message string    `json:"message"`
}

func NewNotices(p Printer) *Notices { return &Notices{P: p} }

func (n *Notices) Pending(key, msg string) { n.write("pending", key, msg) }
func (n *Notices) Success(key, msg string) { n.write("success", key, msg) }
func (n *Notices) Error(key, msg string)   { n.write("error", key, msg) }

func (n *Notices) write(kind, key, msg string) {
	if n.P.Quiet && kind != "error" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	w := n.P.err()
	switch n.P.Mode {
	case ModeJSON, ModeJSONL:
		_ = json.NewEncoder(w).Encode(noticeLine{At: time.Now().UTC(), Kind: kind, Key: key, Message: msg})
	default:
		_, _ = fmt.Fprintf(w, "%s: %s\n", kind, msg)
	}
}
