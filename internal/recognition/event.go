package recognition

import (
	"encoding/json"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
)

// Event is one published recognition outcome. Record is set when the outcome
// produced a new attendance record.
type Event struct {
	Source  string
	Outcome model.Outcome
	At      time.Time
	Record  *model.AttendanceRecord
}

type eventJSON struct {
	Source  string                  `json:"source"`
	Kind    string                  `json:"kind"`
	Result  model.RecognitionResult `json:"result"`
	Overlay *model.Overlay          `json:"overlay,omitempty"`
	Record  *model.AttendanceRecord `json:"record,omitempty"`
	At      time.Time               `json:"at"`
}

// MarshalJSON renders the event for API and feed clients.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Source:  e.Source,
		Kind:    e.Outcome.Kind.String(),
		Result:  e.Outcome.Result(),
		Overlay: e.Outcome.Overlay(),
		Record:  e.Record,
		At:      e.At,
	})
}

// Publisher receives every event a controller publishes. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}
