package orderbook

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a filter predicate's comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpIN
	OpNI
)

func parseOp(s string) (Op, error) {
	switch strings.ToUpper(s) {
	case "EQ":
		return OpEQ, nil
	case "NE":
		return OpNE, nil
	case "LT":
		return OpLT, nil
	case "LE":
		return OpLE, nil
	case "GT":
		return OpGT, nil
	case "GE":
		return OpGE, nil
	case "IN":
		return OpIN, nil
	case "NI":
		return OpNI, nil
	default:
		return 0, fmt.Errorf("unknown filter operator %q", s)
	}
}

func (o Op) String() string {
	return [...]string{"EQ", "NE", "LT", "LE", "GT", "GE", "IN", "NI"}[o]
}

// Field is one of the predicate fields the spec's text grammar names.
type Field int

const (
	FieldLevel Field = iota
	FieldLevelVolume
	FieldAggregateVolume
	FieldPrice
	FieldVolume
	FieldMinQuantity
	FieldKey
	FieldRefKey
	FieldSendingTime
	FieldReceiptTime
	FieldQuoteType
	FieldPositionNo
	FieldSeqNum
	FieldQuoteID
	FieldSession
	FieldPb
	FieldCompID
)

var fieldNames = map[string]Field{
	"Level":           FieldLevel,
	"LevelVolume":     FieldLevelVolume,
	"AggregateVolume": FieldAggregateVolume,
	"Price":           FieldPrice,
	"Volume":          FieldVolume,
	"MinQuantity":     FieldMinQuantity,
	"Key":             FieldKey,
	"RefKey":          FieldRefKey,
	"SendingTime":     FieldSendingTime,
	"ReceiptTime":     FieldReceiptTime,
	"QuoteType":       FieldQuoteType,
	"PositionNo":      FieldPositionNo,
	"SeqNum":          FieldSeqNum,
	"QuoteID":         FieldQuoteID,
	"Session":         FieldSession,
	"Pb":              FieldPb,
	"CompID":          FieldCompID,
}

// isStringField reports which fields compare as strings; everything
// else compares as int64 (timestamps as UnixNano, Pb/Session mapped to
// the nearest available Quote field since neither has a first-class
// counterpart in this core's Quote value).
func isStringField(f Field) bool {
	switch f {
	case FieldQuoteType, FieldQuoteID, FieldSession, FieldCompID:
		return true
	default:
		return false
	}
}

// Filter is a single parsed predicate: field OP value-or-set.
type Filter struct {
	Field Field
	Op    Op

	intValue int64
	intSet   map[int64]bool
	strValue string
	strSet   map[string]bool
}

// Parse reads "field OP value", where value is an integer, a quoted
// string, or a {comma,delimited,set} for IN/NI.
func Parse(text string) (*Filter, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return nil, fmt.Errorf("filter predicate %q: expected 'field OP value'", text)
	}

	field, ok := fieldNames[fields[0]]
	if !ok {
		return nil, fmt.Errorf("filter predicate %q: unknown field %q", text, fields[0])
	}
	op, err := parseOp(fields[1])
	if err != nil {
		return nil, fmt.Errorf("filter predicate %q: %w", text, err)
	}

	rawValue := strings.TrimSpace(strings.Join(fields[2:], " "))
	f := &Filter{Field: field, Op: op}

	if op == OpIN || op == OpNI {
		if !strings.HasPrefix(rawValue, "{") || !strings.HasSuffix(rawValue, "}") {
			return nil, fmt.Errorf("filter predicate %q: IN/NI requires a {set}", text)
		}
		items := strings.Split(rawValue[1:len(rawValue)-1], ",")
		if isStringField(field) {
			f.strSet = make(map[string]bool, len(items))
			for _, it := range items {
				f.strSet[unquote(strings.TrimSpace(it))] = true
			}
		} else {
			f.intSet = make(map[int64]bool, len(items))
			for _, it := range items {
				v, err := strconv.ParseInt(strings.TrimSpace(it), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("filter predicate %q: bad set member %q: %w", text, it, err)
				}
				f.intSet[v] = true
			}
		}
		return f, nil
	}

	if isStringField(field) {
		f.strValue = unquote(rawValue)
	} else {
		v, err := strconv.ParseInt(rawValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filter predicate %q: bad value %q: %w", text, rawValue, err)
		}
		f.intValue = v
	}
	return f, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (f *Filter) compareInt(v int64) bool {
	switch f.Op {
	case OpEQ:
		return v == f.intValue
	case OpNE:
		return v != f.intValue
	case OpLT:
		return v < f.intValue
	case OpLE:
		return v <= f.intValue
	case OpGT:
		return v > f.intValue
	case OpGE:
		return v >= f.intValue
	case OpIN:
		return f.intSet[v]
	case OpNI:
		return !f.intSet[v]
	default:
		return false
	}
}

func (f *Filter) compareString(v string) bool {
	switch f.Op {
	case OpEQ:
		return v == f.strValue
	case OpNE:
		return v != f.strValue
	case OpLT:
		return v < f.strValue
	case OpLE:
		return v <= f.strValue
	case OpGT:
		return v > f.strValue
	case OpGE:
		return v >= f.strValue
	case OpIN:
		return f.strSet[v]
	case OpNI:
		return !f.strSet[v]
	default:
		return false
	}
}

// evalQuote evaluates a quote-scoped field against one quote.
func (f *Filter) evalQuote(q *Quote) bool {
	switch f.Field {
	case FieldPrice:
		return f.compareInt(q.Price)
	case FieldVolume:
		return f.compareInt(q.Volume)
	case FieldMinQuantity:
		return f.compareInt(q.MinQty)
	case FieldKey:
		return f.compareInt(q.Key)
	case FieldRefKey:
		return f.compareInt(q.RefKey)
	case FieldSendingTime:
		return f.compareInt(q.SendingTime.UnixNano())
	case FieldReceiptTime:
		return f.compareInt(q.ReceiptTime.UnixNano())
	case FieldPositionNo:
		return f.compareInt(int64(q.PositionNo))
	case FieldSeqNum:
		return f.compareInt(int64(q.SeqNum))
	case FieldQuoteType:
		return f.compareString(q.QuoteType.String())
	case FieldQuoteID:
		return f.compareString(q.QuoteID)
	case FieldSession, FieldCompID:
		return f.compareString(q.Originator)
	case FieldPb:
		return f.compareInt(int64(q.PositionNo))
	default:
		return false
	}
}

// evalAggregateVolume reports whether the running accVolume has reached
// the AggregateVolume threshold: Open true means the destination group
// is still accumulating (the view driver keeps feeding it groups),
// Accept true means the threshold was reached and it should be emitted.
func (f *Filter) evalAggregateVolume(accVolume int64) EvalResult {
	reached := accVolume >= f.intValue
	return EvalResult{Accept: reached, Open: !reached}
}

// evalLevel evaluates Level against a group's level index, producing
// the early-termination "last" signal the spec's view driver checks.
func (f *Filter) evalLevel(level int) EvalResult {
	accept := f.compareInt(int64(level))
	switch f.Op {
	case OpEQ:
		return EvalResult{Accept: accept, Last: accept}
	case OpLE, OpLT:
		return EvalResult{Accept: accept, Last: !accept}
	default:
		return EvalResult{Accept: accept}
	}
}

func allPricesEqual(quotes []*Quote) bool {
	if len(quotes) == 0 {
		return true
	}
	p := quotes[0].Price
	for _, q := range quotes[1:] {
		if q.Price != p {
			return false
		}
	}
	return true
}
