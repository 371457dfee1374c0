package redis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mimivibe/tarotq/pkg/queue"
)

// Stream entry field names.
const (
	fieldPayload  = "payload"
	fieldAttempts = "attempts"
)

// entryFields serializes a payload into stream entry fields. delivered is
// the number of deliveries the job has already consumed; zero for a fresh
// enqueue.
func entryFields(payload queue.JobPayload, delivered int) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return map[string]interface{}{
		fieldPayload:  string(data),
		fieldAttempts: strconv.Itoa(delivered),
	}, nil
}

// parseEntry decodes stream entry fields back into a payload and its prior
// delivery count. Entries written before the attempts field existed decode
// with a count of zero.
func parseEntry(values map[string]interface{}) (queue.JobPayload, int, error) {
	var payload queue.JobPayload

	raw, ok := values[fieldPayload].(string)
	if !ok {
		return payload, 0, fmt.Errorf("stream entry has no %s field", fieldPayload)
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, 0, fmt.Errorf("unmarshal payload: %w", err)
	}

	delivered := 0
	if s, ok := values[fieldAttempts].(string); ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			delivered = n
		}
	}

	return payload, delivered, nil
}
