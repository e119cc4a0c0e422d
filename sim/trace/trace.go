package trace

// EventLog collects records in the order they happen. Once sealed it drops
// further appends, so routines unwound after the run ends cannot extend it.
type EventLog struct {
	records []Record
	sealed  bool
}

// NewEventLog creates an EventLog ready for recording.
func NewEventLog() *EventLog {
	return &EventLog{records: make([]Record, 0)}
}

// Append stamps the record with the next sequence number and stores it.
func (l *EventLog) Append(r Record) {
	if l.sealed {
		return
	}
	r.Seq = len(l.records) + 1
	l.records = append(l.records, r)
}

// Seal stops further recording.
func (l *EventLog) Seal() {
	l.sealed = true
}

// Sealed reports whether the log stopped recording.
func (l *EventLog) Sealed() bool {
	return l.sealed
}

// Len returns the number of records.
func (l *EventLog) Len() int {
	return len(l.records)
}

// Records returns a copy of the log.
func (l *EventLog) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Count returns how many records have the given kind.
func (l *EventLog) Count(kind Kind) int {
	n := 0
	for _, r := range l.records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns the records matching keep, in log order.
func (l *EventLog) Filter(keep func(Record) bool) []Record {
	var out []Record
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
