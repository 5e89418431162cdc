// Package query adapts select SQL over stored objects onto an embedded
// DuckDB instance. The object is exposed to the engine through its file
// reader functions (read_csv_auto / read_json_auto / read_parquet) and the
// output is exported with COPY to a uniquely named result file, which is
// slurped and deleted.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/airmettle/go-nvme-kv/internal/interfaces"
	"github.com/airmettle/go-nvme-kv/internal/kverr"
)

// DataType identifies a select input or output format.
type DataType uint8

const (
	TypeCSV     DataType = 0
	TypeJSON    DataType = 1
	TypeParquet DataType = 2
)

// poolBackoff is how long a caller sleeps between scans when every
// connection is busy. Holding the pool mutex across a query would serialize
// the engine, so acquisition is lock/scan/release/sleep.
const poolBackoff = 100 * time.Millisecond

// resultCounter makes result filenames unique under concurrent queries.
var resultCounter atomic.Uint32

// execer runs one statement on a single engine connection.
type execer interface {
	exec(ctx context.Context, command string) error
}

type dbConn struct {
	conn *sql.Conn
}

func (c *dbConn) exec(ctx context.Context, command string) error {
	_, err := c.conn.ExecContext(ctx, command)
	return err
}

// Engine is a fixed pool of engine connections shared by all task workers.
type Engine struct {
	db     *sql.DB
	conns  []execer
	busy   []bool
	mu     sync.Mutex
	logger interfaces.Logger
}

// New opens an in-memory DuckDB and pins numConns connections for the pool.
func New(numConns int, logger interfaces.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, kverr.Wrap("query-init", kverr.ErrQuery, "", err)
	}
	db.SetMaxOpenConns(numConns)

	conns := make([]execer, numConns)
	for i := 0; i < numConns; i++ {
		conn, err := db.Conn(context.Background())
		if err != nil {
			db.Close()
			return nil, kverr.Wrap("query-init", kverr.ErrQuery, "", err)
		}
		conns[i] = &dbConn{conn: conn}
	}

	return &Engine{
		db:     db,
		conns:  conns,
		busy:   make([]bool, numConns),
		logger: logger,
	}, nil
}

// newWithConns builds an engine over caller-supplied connections; used by
// tests to stub out the database.
func newWithConns(conns []execer) *Engine {
	return &Engine{
		conns: conns,
		busy:  make([]bool, len(conns)),
	}
}

// Close releases the pool.
func (e *Engine) Close() error {
	for _, c := range e.conns {
		if dc, ok := c.(*dbConn); ok {
			dc.conn.Close()
		}
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// readerFunc returns the engine's file reader call for an input format.
func readerFunc(t DataType) string {
	switch t {
	case TypeJSON:
		return "read_json_auto('"
	case TypeParquet:
		return "read_parquet('"
	default:
		return "read_csv_auto('"
	}
}

// resultExt returns the result filename extension for an output format.
func resultExt(t DataType) string {
	switch t {
	case TypeJSON:
		return ".json"
	case TypeParquet:
		return ".parquet"
	default:
		return ".csv"
	}
}

// BuildCommand rewrites a select statement into the engine's COPY export
// form. The table reference after the first case-insensitive FROM is
// replaced by a reader over the object's file; everything after that token
// passes through unchanged, minus a trailing semicolon:
//
//	copy (<head>reader('<path>'[, HEADER=...])<tail>) to '<n>.<ext>' [...]
//
// The returned result path is unique per call via a process-wide counter.
func BuildCommand(path, sqlText string, inFmt, outFmt DataType, inHeader, outHeader bool) (command, resultPath string, err error) {
	idx := strings.Index(strings.ToLower(sqlText), "from")
	if idx < 0 {
		return "", "", kverr.New("query", kverr.ErrInvalidParameter)
	}
	// Head includes "from" and the byte after it (its trailing space).
	split1 := idx + 5
	if split1 > len(sqlText) {
		split1 = len(sqlText)
	}

	total := len(sqlText)
	if total > 0 && sqlText[total-1] == ';' {
		total--
	}

	// Skip the table token; the tail starts at the next space.
	split2 := split1
	for split2 < total && sqlText[split2] != ' ' {
		split2++
	}

	var b strings.Builder
	b.WriteString("copy (")
	b.WriteString(sqlText[:split1])
	b.WriteString(readerFunc(inFmt))
	b.WriteString(path)
	b.WriteString("'")
	if inFmt == TypeCSV {
		if inHeader {
			b.WriteString(", HEADER=TRUE")
		} else {
			b.WriteString(", HEADER=FALSE")
		}
	}
	b.WriteString(")")
	b.WriteString(sqlText[split2:total])

	resultPath = fmt.Sprintf("%d%s", resultCounter.Add(1)-1, resultExt(outFmt))
	b.WriteString(") to '")
	b.WriteString(resultPath)
	b.WriteString("'")

	if outFmt == TypeCSV && outHeader {
		b.WriteString(" ( header )")
	} else if outFmt == TypeParquet {
		b.WriteString(" ( format parquet )")
	}

	return b.String(), resultPath, nil
}

// acquire claims a pool slot, backing off while all connections are busy.
func (e *Engine) acquire() int {
	for {
		e.mu.Lock()
		for i := range e.busy {
			if !e.busy[i] {
				e.busy[i] = true
				e.mu.Unlock()
				return i
			}
		}
		e.mu.Unlock()
		time.Sleep(poolBackoff)
	}
}

func (e *Engine) release(i int) {
	e.mu.Lock()
	e.busy[i] = false
	e.mu.Unlock()
}

// Query runs a select statement against the object at path and returns the
// exported result bytes. path must already be resolved by the object store;
// no directories are created.
func (e *Engine) Query(path, sqlText string, inFmt, outFmt DataType, inHeader, outHeader bool) ([]byte, error) {
	command, resultPath, err := BuildCommand(path, sqlText, inFmt, outFmt, inHeader, outHeader)
	if err != nil {
		return nil, err
	}

	conn := e.acquire()
	execErr := e.conns[conn].exec(context.Background(), command)
	e.release(conn)
	if execErr != nil {
		if e.logger != nil {
			e.logger.Debugf("select query failed: %v", execErr)
		}
		return nil, kverr.Wrap("query", kverr.ErrQuery, path, execErr)
	}

	result, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, kverr.FromOpenError("query", resultPath, err)
	}
	if err := os.Remove(resultPath); err != nil && e.logger != nil {
		e.logger.Debugf("could not remove result file %s: %v", resultPath, err)
	}
	return result, nil
}
