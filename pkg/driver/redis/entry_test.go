package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mimivibe/tarotq/pkg/queue"
)

func samplePayload() queue.JobPayload {
	return queue.JobPayload{
		JobID:         "job-42",
		UserID:        uuid.MustParse("6f9619ff-8b86-d011-b42d-00cf4fc964ff"),
		Question:      "What should I focus on?",
		CardCount:     5,
		SchemaVersion: "1",
		PromptVersion: "v2025-11-20-a",
		CreatedAt:     time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC),
		Metadata:      map[string]string{"locale": "th"},
	}
}

func TestEntryFieldsRoundTrip(t *testing.T) {
	fields, err := entryFields(samplePayload(), 2)
	if err != nil {
		t.Fatalf("entryFields failed: %v", err)
	}
	if fields[fieldAttempts] != "2" {
		t.Errorf("Expected attempts field 2, got %v", fields[fieldAttempts])
	}

	payload, delivered, err := parseEntry(fields)
	if err != nil {
		t.Fatalf("parseEntry failed: %v", err)
	}
	if delivered != 2 {
		t.Errorf("Expected delivered 2, got %d", delivered)
	}
	if payload.JobID != "job-42" || payload.CardCount != 5 {
		t.Errorf("Payload mismatch: %+v", payload)
	}
}

func TestParseEntry_MissingPayloadField(t *testing.T) {
	_, _, err := parseEntry(map[string]interface{}{"other": "x"})
	if err == nil {
		t.Error("Expected error for entry without payload field")
	}
}

func TestParseEntry_MalformedPayload(t *testing.T) {
	_, _, err := parseEntry(map[string]interface{}{fieldPayload: "{not json"})
	if err == nil {
		t.Error("Expected error for malformed payload JSON")
	}
}

func TestParseEntry_DefaultsDeliveredToZero(t *testing.T) {
	fields, _ := entryFields(samplePayload(), 0)
	delete(fields, fieldAttempts)

	_, delivered, err := parseEntry(fields)
	if err != nil {
		t.Fatalf("parseEntry failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("Expected delivered 0 for legacy entry, got %d", delivered)
	}

	fields[fieldAttempts] = "garbage"
	_, delivered, _ = parseEntry(fields)
	if delivered != 0 {
		t.Errorf("Expected delivered 0 for unparseable attempts, got %d", delivered)
	}
}
