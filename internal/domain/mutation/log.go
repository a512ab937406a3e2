package mutation

// DefaultLogCap предел журнала синхронизации по умолчанию
const DefaultLogCap = 200

// Log ограниченный журнал исходов синхронизации. Только добавление;
// при переполнении вытесняется самая старая запись.
type Log struct {
	entries []LogEntry
	cap     int
}

// NewLog создает журнал с заданным пределом. Неположительный предел
// заменяется значением по умолчанию.
func NewLog(cap int) *Log {
	if cap <= 0 {
		cap = DefaultLogCap
	}
	return &Log{cap: cap}
}

// Append добавляет запись, вытесняя старейшую при переполнении
func (l *Log) Append(entry LogEntry) {
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

// Entries возвращает копию записей от старых к новым
func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len возвращает количество записей
func (l *Log) Len() int {
	return len(l.entries)
}
