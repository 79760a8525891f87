package database

// Scanner is the subset of *sql.Rows that ScanValues needs.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanValues reads the current row of a database/sql style cursor into a
// fresh []any of width n, letting the driver pick each Go type.
func ScanValues(s Scanner, n int) ([]any, error) {
	// Allocate scan targets as *any so the driver can write any type.
	dest := make([]any, n)
	destPtrs := make([]any, n)
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := s.Scan(destPtrs...); err != nil {
		return nil, err
	}
	return dest, nil
}

// Names returns the column names in ordinal order.
func Names(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
