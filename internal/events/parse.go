package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/frostline/rehydrate/pkg/types"
)

// s3Notification mirrors the subset of the S3 event notification payload the
// listener needs. Object keys arrive URL-encoded.
type s3Notification struct {
	Records []s3NotificationRecord `json:"Records"`
}

type s3NotificationRecord struct {
	EventName string    `json:"eventName"`
	EventTime time.Time `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// snsEnvelope is the wrapper SNS adds when a topic sits between the bucket
// and the queue.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// ParseMessage turns one queue message body into zero or more completion
// events. Three shapes are accepted: an S3 event notification, that same
// notification wrapped in an SNS envelope, and the engine's own
// CompletionEvent JSON. Restore-initiation records (ObjectRestore:Post) are
// not completions and produce nothing.
func ParseMessage(body []byte) ([]types.CompletionEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		return ParseMessage([]byte(env.Message))
	}

	var note s3Notification
	if err := json.Unmarshal(body, &note); err == nil && len(note.Records) > 0 {
		var out []types.CompletionEvent
		for _, rec := range note.Records {
			ev, ok := completionFromRecord(rec)
			if !ok {
				continue
			}
			out = append(out, ev)
		}
		return out, nil
	}

	var direct types.CompletionEvent
	if err := json.Unmarshal(body, &direct); err == nil && direct.Bucket != "" && direct.Key != "" {
		return []types.CompletionEvent{direct}, nil
	}

	return nil, fmt.Errorf("unrecognized completion message")
}

func completionFromRecord(rec s3NotificationRecord) (types.CompletionEvent, bool) {
	ev := types.CompletionEvent{
		Bucket:      rec.S3.Bucket.Name,
		Key:         decodeObjectKey(rec.S3.Object.Key),
		AvailableAt: rec.EventTime,
	}

	switch name := strings.TrimPrefix(rec.EventName, "s3:"); {
	case name == "ObjectRestore:Completed":
		ev.Success = true
	case name == "ObjectRestore:Delete":
		ev.FailureReason = "restored copy expired before pickup"
	case strings.HasPrefix(name, "LifecycleExpiration"):
		ev.FailureReason = "object expired from the archive bucket"
	default:
		return types.CompletionEvent{}, false
	}

	if ev.Bucket == "" || ev.Key == "" {
		return types.CompletionEvent{}, false
	}
	return ev, true
}

// decodeObjectKey undoes the URL encoding S3 applies to keys in event
// notifications ("+" for spaces included).
func decodeObjectKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
