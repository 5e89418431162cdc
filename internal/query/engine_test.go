package query

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airmettle/go-nvme-kv/internal/kverr"
)

// shape strips the counter out of a composed command so tests can compare
// against a fixed string.
var resultNameRe = regexp.MustCompile(`to '\d+\.`)

func shape(command string) string {
	return resultNameRe.ReplaceAllString(command, "to 'N.")
}

func TestBuildCommandCSVWithHeaders(t *testing.T) {
	command, resultPath, err := BuildCommand("/base/1/1/AB", "select name,age from s3object",
		TypeCSV, TypeCSV, true, true)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select name,age from read_csv_auto('/base/1/1/AB', HEADER=TRUE)) to 'N.csv' ( header )"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
	if m, _ := regexp.MatchString(`^\d+\.csv$`, resultPath); !m {
		t.Errorf("result path = %q", resultPath)
	}
}

func TestBuildCommandCSVNoHeaders(t *testing.T) {
	command, _, err := BuildCommand("/p", "select * from s3object",
		TypeCSV, TypeCSV, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select * from read_csv_auto('/p', HEADER=FALSE)) to 'N.csv'"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestBuildCommandJSON(t *testing.T) {
	command, resultPath, err := BuildCommand("/p", "select hobby,status.city from s3object",
		TypeJSON, TypeJSON, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select hobby,status.city from read_json_auto('/p')) to 'N.json'"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
	if m, _ := regexp.MatchString(`\.json$`, resultPath); !m {
		t.Errorf("result path = %q", resultPath)
	}
}

func TestBuildCommandParquetOutput(t *testing.T) {
	command, _, err := BuildCommand("/p", "select * from s3object",
		TypeParquet, TypeParquet, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select * from read_parquet('/p')) to 'N.parquet' ( format parquet )"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestBuildCommandClausePassthrough(t *testing.T) {
	command, _, err := BuildCommand("/p", "select id from s3object where userId=1",
		TypeJSON, TypeJSON, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select id from read_json_auto('/p') where userId=1) to 'N.json'"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestBuildCommandStripsSemicolon(t *testing.T) {
	command, _, err := BuildCommand("/p", "select * from s3object limit 1;",
		TypeJSON, TypeCSV, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (select * from read_json_auto('/p') limit 1) to 'N.csv'"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestBuildCommandCaseInsensitiveFrom(t *testing.T) {
	command, _, err := BuildCommand("/p", "SELECT * FROM s3object",
		TypeCSV, TypeCSV, false, false)
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}
	want := "copy (SELECT * FROM read_csv_auto('/p', HEADER=FALSE)) to 'N.csv'"
	if got := shape(command); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestBuildCommandMissingFrom(t *testing.T) {
	_, _, err := BuildCommand("/p", "select 1", TypeCSV, TypeCSV, false, false)
	if !kverr.IsCode(err, kverr.ErrInvalidParameter) {
		t.Errorf("missing FROM = %v, want invalid-parameter", err)
	}
}

func TestResultPathsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, p, err := BuildCommand("/p", "select * from t x", TypeCSV, TypeCSV, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if seen[p] {
			t.Fatalf("result path %q repeated", p)
		}
		seen[p] = true
	}
}

// fakeExec records the command and produces the result file the way the
// engine would.
type fakeExec struct {
	mu       sync.Mutex
	commands []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	payload  []byte
}

func (f *fakeExec) exec(_ context.Context, command string) error {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()

	// The engine reads back the path between to '...' quotes.
	m := regexp.MustCompile(`to '([^']+)'`).FindStringSubmatch(command)
	return os.WriteFile(m[1], f.payload, 0o666)
}

func withTempWorkdir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestQueryCollectsAndRemovesResultFile(t *testing.T) {
	withTempWorkdir(t)
	fake := &fakeExec{payload: []byte("name,age\nBob,18\n")}
	e := newWithConns([]execer{fake})

	out, err := e.Query("/p", "select name,age from s3object", TypeCSV, TypeCSV, true, true)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if string(out) != "name,age\nBob,18\n" {
		t.Errorf("result = %q", out)
	}

	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("result file left behind: %v", entries)
	}
}

func TestQueryPoolBounded(t *testing.T) {
	withTempWorkdir(t)
	fake := &fakeExec{payload: []byte("x\n"), delay: 20 * time.Millisecond}
	e := newWithConns([]execer{fake, fake})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Query("/p", fmt.Sprintf("select %d from t x", i),
				TypeCSV, TypeCSV, false, false)
			if err != nil {
				t.Errorf("query %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if max := fake.maxSeen.Load(); max > 2 {
		t.Errorf("pool admitted %d concurrent queries, want <= 2", max)
	}
	if len(fake.commands) != 8 {
		t.Errorf("ran %d commands, want 8", len(fake.commands))
	}
}
