package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

// Fingerprint derives the cache key for one request. Two requests share a
// key only when the task, content, pinned provider and model (empty when
// unpinned), and the generation parameters that change output all match, so
// the key never depends on which candidate routing happens to rank first.
// Session history is excluded: conversational turns are not cacheable.
func Fingerprint(kind task.Kind, req providers.Request, providerID, modelID, templateID string) string {
	h := fnv.New64a()
	if len(req.Messages) > 0 {
		// Canonical form so field ordering never splits the key space.
		type turn struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		turns := make([]turn, len(req.Messages))
		for i, m := range req.Messages {
			turns[i] = turn{Role: m.Role, Content: m.Content}
		}
		b, _ := json.Marshal(turns)
		h.Write(b)
	} else {
		h.Write([]byte(req.Text))
	}

	temp := "default"
	if req.Temperature != nil {
		temp = strconv.FormatFloat(*req.Temperature, 'f', 2, 64)
	}
	if templateID == "" {
		templateID = "none"
	}
	return fmt.Sprintf("%s|%016x|%s|%s|%d|%s|%s",
		kind, h.Sum64(), providerID, modelID, req.MaxTokens, temp, templateID)
}
