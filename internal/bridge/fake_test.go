package bridge

import (
	"context"
	"sync"

	"github.com/koustreak/rowbridge/internal/database"
)

// fakeDB is an in-memory database.Provider that serves one fixed result
// and counts every resource it hands out.
type fakeDB struct {
	mu sync.Mutex

	cols     []database.Column
	rows     [][]any
	affected int64

	acquireErr   error
	prepareErr   error
	queryErr     error
	execErr      error
	iterErr      error
	rowsCloseErr error
	valuesErrAt  int // 1-based row whose Values call fails
	valuesErr    error
	blockQuery   bool

	acquired, released   int
	prepared, stmtClosed int
	opened, rowsClosed   int

	lastSQL  string
	lastArgs []any
}

func newFakeDB(names ...string) *fakeDB {
	cols := make([]database.Column, len(names))
	for i, n := range names {
		cols[i] = database.Column{Name: n, Ordinal: i + 1}
	}
	return &fakeDB{cols: cols}
}

func (f *fakeDB) withRows(rows ...[]any) *fakeDB {
	f.rows = rows
	return f
}

func (f *fakeDB) counts() (acquired, released, prepared, stmtClosed, opened, rowsClosed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released, f.prepared, f.stmtClosed, f.opened, f.rowsClosed
}

func (f *fakeDB) Acquire(_ context.Context, _ database.Descriptor) (database.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	return &fakeConn{db: f}, nil
}

func (f *fakeDB) Close() error { return nil }

type fakeConn struct{ db *fakeDB }

func (c *fakeConn) Prepare(_ context.Context, sql string) (database.Stmt, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.lastSQL = sql
	if c.db.prepareErr != nil {
		return nil, c.db.prepareErr
	}
	c.db.prepared++
	return &fakeStmt{db: c.db}, nil
}

func (c *fakeConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.released++
	return nil
}

type fakeStmt struct{ db *fakeDB }

func (s *fakeStmt) Query(ctx context.Context, args ...any) (database.Rows, error) {
	s.db.mu.Lock()
	s.db.lastArgs = args
	block, qerr := s.db.blockQuery, s.db.queryErr
	s.db.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if qerr != nil {
		return nil, qerr
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.opened++
	return &fakeRows{db: s.db, pos: -1}, nil
}

func (s *fakeStmt) Exec(_ context.Context, args ...any) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.lastArgs = args
	if s.db.execErr != nil {
		return 0, s.db.execErr
	}
	return s.db.affected, nil
}

func (s *fakeStmt) Close() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.stmtClosed++
	return nil
}

type fakeRows struct {
	db  *fakeDB
	pos int
}

func (r *fakeRows) Columns() ([]database.Column, error) { return r.db.cols, nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.db.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	if r.db.valuesErrAt == r.pos+1 {
		return nil, r.db.valuesErr
	}
	return r.db.rows[r.pos], nil
}

func (r *fakeRows) Err() error { return r.db.iterErr }

func (r *fakeRows) Close() error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.rowsClosed++
	return r.db.rowsCloseErr
}
