package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
)

// authError stands in for a driver's native "access denied" error.
type authError struct{}

func (authError) Error() string { return "access denied" }

func classify(err error) errs.ErrKind {
	var a authError
	if errors.As(err, &a) {
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindUnknown
}

type script struct {
	cols       []string
	data       [][]driver.Value
	affected   int64
	prepareErr error
	queryErr   error
}

type testConnector struct{ s *script }

func (c *testConnector) Connect(context.Context) (driver.Conn, error) { return &testConn{s: c.s}, nil }
func (c *testConnector) Driver() driver.Driver                        { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type testConn struct{ s *script }

func (c *testConn) Prepare(query string) (driver.Stmt, error) {
	if c.s.prepareErr != nil {
		return nil, c.s.prepareErr
	}
	return &testStmt{s: c.s}, nil
}
func (c *testConn) Close() error              { return nil }
func (c *testConn) Begin() (driver.Tx, error) { return nil, errors.New("no transactions") }

type testStmt struct{ s *script }

func (s *testStmt) Close() error  { return nil }
func (s *testStmt) NumInput() int { return -1 }

func (s *testStmt) Exec([]driver.Value) (driver.Result, error) {
	return driver.RowsAffected(s.s.affected), nil
}

func (s *testStmt) Query([]driver.Value) (driver.Rows, error) {
	if s.s.queryErr != nil {
		return nil, s.s.queryErr
	}
	return &testRows{cols: s.s.cols, data: s.s.data}, nil
}

type testRows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

func (r *testRows) Columns() []string { return r.cols }
func (r *testRows) Close() error      { return nil }

func (r *testRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}

func newProvider(s *script) *Provider {
	return New("test", func(database.Descriptor) (*sql.DB, error) {
		return sql.OpenDB(&testConnector{s: s}), nil
	}, classify, nil)
}

var desc = database.Descriptor{Address: "test://db/app"}

func TestProvider_Query(t *testing.T) {
	p := newProvider(&script{
		cols: []string{"id", "name"},
		data: [][]driver.Value{{int64(1), "Alice"}, {int64(2), "Bob"}},
	})
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx, desc)
	require.NoError(t, err)
	st, err := c.Prepare(ctx, "SELECT id, name FROM users")
	require.NoError(t, err)
	rows, err := st.Query(ctx)
	require.NoError(t, err)

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, database.Names(cols))
	assert.Equal(t, 2, cols[1].Ordinal)

	var got [][]any
	for rows.Next() {
		vals, err := rows.Values()
		require.NoError(t, err)
		got = append(got, vals)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}}, got)

	require.NoError(t, rows.Close())
	require.NoError(t, st.Close())
	require.NoError(t, c.Close())

	stats, ok := p.Stats(desc)
	require.True(t, ok)
	assert.Zero(t, stats.InUse)
}

func TestProvider_Exec(t *testing.T) {
	p := newProvider(&script{affected: 3})
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx, desc)
	require.NoError(t, err)
	defer c.Close()
	st, err := c.Prepare(ctx, "DELETE FROM users")
	require.NoError(t, err)
	defer st.Close()

	n, err := st.Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestProvider_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	p := newProvider(&script{prepareErr: authError{}})
	c, err := p.Acquire(ctx, desc)
	require.NoError(t, err)
	_, err = c.Prepare(ctx, "SELECT 1")
	assert.True(t, errs.IsConnectionFailed(err), "classifier wins")
	require.NoError(t, c.Close())
	require.NoError(t, p.Close())

	p = newProvider(&script{queryErr: errors.New("no such table: users")})
	c, err = p.Acquire(ctx, desc)
	require.NoError(t, err)
	st, err := c.Prepare(ctx, "SELECT * FROM users")
	require.NoError(t, err)
	_, err = st.Query(ctx)
	assert.True(t, errs.IsQueryFailed(err), "unknown errors take the phase kind")
	require.NoError(t, st.Close())
	require.NoError(t, c.Close())
	require.NoError(t, p.Close())
}

func TestProvider_OpenFailure(t *testing.T) {
	bad := errors.New("bad address")
	p := New("test", func(database.Descriptor) (*sql.DB, error) { return nil, bad }, nil, nil)
	_, err := p.Acquire(context.Background(), desc)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.ErrorIs(t, err, bad)

	classified := errs.New(errs.ErrKindTimeout, "dial timeout")
	p = New("test", func(database.Descriptor) (*sql.DB, error) { return nil, classified }, nil, nil)
	_, err = p.Acquire(context.Background(), desc)
	assert.True(t, errs.IsTimeout(err))
}

func TestProvider_CanceledAcquire(t *testing.T) {
	p := newProvider(&script{})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Acquire(ctx, desc)
	assert.True(t, errs.IsTimeout(err))
}

func TestProvider_OnePoolPerDescriptor(t *testing.T) {
	opened := 0
	p := New("test", func(database.Descriptor) (*sql.DB, error) {
		opened++
		return sql.OpenDB(&testConnector{s: &script{}}), nil
	}, nil, nil)
	ctx := context.Background()

	for _, d := range []database.Descriptor{desc, desc, {Address: desc.Address, Username: "other"}} {
		c, err := p.Acquire(ctx, d)
		require.NoError(t, err)
		require.NoError(t, c.Close())
	}
	assert.Equal(t, 2, opened)

	require.NoError(t, p.Close())
	_, ok := p.Stats(desc)
	assert.False(t, ok)
}
