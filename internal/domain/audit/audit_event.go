package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of a lookup
type Result string

const (
	ResultHitLocal  Result = "HIT_LOCAL"  // served from the in-process LRU
	ResultHitShared Result = "HIT_SHARED" // served from Redis
	ResultHitStore  Result = "HIT_STORE"  // served from Postgres
	ResultFetched   Result = "FETCHED"    // fetched from the upstream source
	ResultNotFound  Result = "NOT_FOUND"
	ResultRejected  Result = "REJECTED" // failed identifier validation, no I/O performed
	ResultFailed    Result = "FAILED"
)

// Lookup kinds
const (
	KindLei         = "lei"
	KindLeiBatch    = "lei_batch"
	KindLeiByIsin   = "lei_by_isin"
	KindLeiByBic    = "lei_by_bic"
	KindLeiByName   = "lei_by_name"
	KindIsinByCusip = "isin_by_cusip"
	KindIsinBySedol = "isin_by_sedol"
)

// LookupEvent is an immutable record of a reference data lookup with an HMAC signature
type LookupEvent struct {
	EventID       string        `json:"event_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Kind          string        `json:"kind"`
	Query         string        `json:"query"`
	Result        Result        `json:"result"`
	Matches       int           `json:"matches"`
	Duration      time.Duration `json:"duration_ns"`
	RequestID     string        `json:"request_id,omitempty"`
	Subject       string        `json:"subject,omitempty"` // authenticated caller, if any
	FailureReason string        `json:"failure_reason,omitempty"`
	HMAC          string        `json:"hmac"`
}

// LookupEventBuilder builds lookup events with required fields
type LookupEventBuilder struct {
	event      *LookupEvent
	hmacSecret []byte
}

// NewLookupEvent creates a new lookup event builder
func NewLookupEvent(hmacSecret []byte, kind, query string) *LookupEventBuilder {
	return &LookupEventBuilder{
		event: &LookupEvent{
			EventID:   uuid.New().String(),
			Timestamp: time.Now().UTC(),
			Kind:      kind,
			Query:     query,
		},
		hmacSecret: hmacSecret,
	}
}

// Result sets the outcome and the number of records returned
func (b *LookupEventBuilder) Result(result Result, matches int) *LookupEventBuilder {
	b.event.Result = result
	b.event.Matches = matches
	return b
}

// Duration sets how long the lookup took
func (b *LookupEventBuilder) Duration(d time.Duration) *LookupEventBuilder {
	b.event.Duration = d
	return b
}

// RequestID sets the correlation ID
func (b *LookupEventBuilder) RequestID(id string) *LookupEventBuilder {
	b.event.RequestID = id
	return b
}

// Subject sets the authenticated caller
func (b *LookupEventBuilder) Subject(sub string) *LookupEventBuilder {
	b.event.Subject = sub
	return b
}

// Failure marks the event as failed
func (b *LookupEventBuilder) Failure(reason string) *LookupEventBuilder {
	b.event.Result = ResultFailed
	b.event.FailureReason = reason
	return b
}

// Build creates the final event with its HMAC signature
func (b *LookupEventBuilder) Build() (*LookupEvent, error) {
	signature, err := sign(b.event, b.hmacSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to compute HMAC: %w", err)
	}
	b.event.HMAC = signature

	return b.event, nil
}

func sign(event *LookupEvent, secret []byte) (string, error) {
	eventCopy := *event
	eventCopy.HMAC = ""

	data, err := json.Marshal(eventCopy)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyHMAC verifies the integrity of a lookup event
func VerifyHMAC(event *LookupEvent, hmacSecret []byte) bool {
	expected, err := sign(event, hmacSecret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(event.HMAC), []byte(expected))
}

// JSON returns the event as JSON bytes
func (e *LookupEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseLookupEvent parses a lookup event from JSON
func ParseLookupEvent(data []byte) (*LookupEvent, error) {
	var event LookupEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
