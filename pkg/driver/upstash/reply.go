package upstash

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mimivibe/tarotq/pkg/queue"
)

// Stream entry field names, shared with the direct Redis backend so the two
// can read each other's streams.
const (
	fieldPayload  = "payload"
	fieldAttempts = "attempts"
)

// parseReadReply extracts the first entry from an XREADGROUP result. The
// REST envelope encodes it as nested arrays:
//
//	[[stream, [[entryID, [field, value, ...]], ...]], ...]
//
// A null result means nothing was available and is not an error.
func parseReadReply(result json.RawMessage, streamKey string) (string, map[string]string, bool, error) {
	if len(result) == 0 || string(result) == "null" {
		return "", nil, false, nil
	}

	var streams []json.RawMessage
	if err := json.Unmarshal(result, &streams); err != nil {
		return "", nil, false, fmt.Errorf("unexpected read reply shape: %w", err)
	}
	if len(streams) == 0 {
		return "", nil, false, nil
	}

	var stream []json.RawMessage
	if err := json.Unmarshal(streams[0], &stream); err != nil || len(stream) != 2 {
		return "", nil, false, fmt.Errorf("unexpected stream element in read reply")
	}

	var name string
	if err := json.Unmarshal(stream[0], &name); err != nil {
		return "", nil, false, fmt.Errorf("unexpected stream name in read reply")
	}
	if name != streamKey {
		return "", nil, false, fmt.Errorf("read reply for stream %q, expected %q", name, streamKey)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(stream[1], &entries); err != nil {
		return "", nil, false, fmt.Errorf("unexpected entry list in read reply")
	}
	if len(entries) == 0 {
		return "", nil, false, nil
	}

	return parseEntryElement(entries[0])
}

// parseRangeReply extracts the fields of the single entry an
// XRANGE id id call returns, reporting found=false for an empty result.
func parseRangeReply(result json.RawMessage) (map[string]string, bool, error) {
	if len(result) == 0 || string(result) == "null" {
		return nil, false, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, false, fmt.Errorf("unexpected range reply shape: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	_, fields, ok, err := parseEntryElement(entries[0])
	return fields, ok, err
}

// parseEntryElement decodes one [entryID, [field, value, ...]] pair.
func parseEntryElement(raw json.RawMessage) (string, map[string]string, bool, error) {
	var entry []json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil || len(entry) != 2 {
		return "", nil, false, fmt.Errorf("unexpected entry shape in reply")
	}

	var entryID string
	if err := json.Unmarshal(entry[0], &entryID); err != nil {
		return "", nil, false, fmt.Errorf("unexpected entry id in reply")
	}

	var flat []string
	if err := json.Unmarshal(entry[1], &flat); err != nil || len(flat)%2 != 0 {
		return "", nil, false, fmt.Errorf("unexpected field list in reply")
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}

	return entryID, fields, true, nil
}

// parseFields decodes entry fields into a payload and its prior delivery
// count. Entries without an attempts field decode with a count of zero.
func parseFields(fields map[string]string) (queue.JobPayload, int, error) {
	var payload queue.JobPayload

	raw, ok := fields[fieldPayload]
	if !ok {
		return payload, 0, fmt.Errorf("stream entry has no %s field", fieldPayload)
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, 0, fmt.Errorf("unmarshal payload: %w", err)
	}

	delivered := 0
	if s, ok := fields[fieldAttempts]; ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			delivered = n
		}
	}

	return payload, delivered, nil
}
