package venue

import (
	"encoding/json"
	"strconv"

	"github.com/sawpanic/mdgateway/internal/processor"
)

// decodeDoc re-marshals a generically-parsed processor.Doc into a
// venue's strongly-typed wire struct. Every handler receives the same
// map[string]interface{} the type detector classified; this keeps
// decoding in one place per venue message shape instead of duplicating
// field-by-field type assertions.
func decodeDoc(doc processor.Doc, v interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
