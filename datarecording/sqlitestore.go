package datarecording

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/structs"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/sessionprof/tracing"
)

const (
	sessionTable = "profiling_sessions"
	eventTable   = "trace_events"
)

type sessionEntry struct {
	ID        string
	Path      string
	Name      string
	Version   string
	NumEvents int
	Command   string
	SavedAt   string
}

type eventEntry struct {
	SessionID string
	Seq       int
	Name      string
	Cat       string
	Ph        string
	Ts        float64
	Pid       int
	Tid       string
	TidNamed  bool
	ObjectID  string
	Args      string
	Cname     string
}

// SQLiteStore records reports into a SQLite database, one row per session
// and one row per trace event.
type SQLiteStore struct {
	*sql.DB

	mu sync.Mutex
}

// NewSQLiteStore opens, or creates, the database <path>.sqlite3. The caller
// owns the store and closes it once the last report is saved.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "profiler_reports_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Database created for reports: %s\n", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}

	s, err := NewSQLiteStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewSQLiteStoreWithDB creates a SQLiteStore over an opened database.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{DB: db}

	if err := s.createTable(sessionTable, sessionEntry{}); err != nil {
		return nil, err
	}

	if err := s.createTable(eventTable, eventEntry{}); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) createTable(tableName string, sampleEntry any) error {
	fields := strings.Join(structs.Names(sampleEntry), ", \n\t")

	createTableSQL := `CREATE TABLE IF NOT EXISTS ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`

	if _, err := s.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	return nil
}

// SaveReport records the report as a new session. The path and the name are
// kept as columns of the session row. The session row and all its events are
// written in one transaction, so a failed save leaves nothing behind.
func (s *SQLiteStore) SaveReport(
	path, name string,
	report tracing.Report,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := xid.New().String()

	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = writeReport(tx, sessionEntry{
		ID:        id,
		Path:      path,
		Name:      name,
		Version:   report.OtherData.Version,
		NumEvents: len(report.TraceEvents),
		Command:   strings.Join(os.Args, " "),
		SavedAt:   time.Now().Format("2006-01-02 15:04:05.000000000"),
	}, report.TraceEvents)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func writeReport(
	tx *sql.Tx,
	session sessionEntry,
	events []tracing.TraceEvent,
) error {
	sessionStmt, err := prepareInsert(tx, sessionTable, session)
	if err != nil {
		return err
	}
	defer sessionStmt.Close()

	if _, err := sessionStmt.Exec(structs.Values(session)...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", sessionTable, err)
	}

	eventStmt, err := prepareInsert(tx, eventTable, eventEntry{})
	if err != nil {
		return err
	}
	defer eventStmt.Close()

	for i, e := range events {
		entry, err := toEventEntry(session.ID, i, e)
		if err != nil {
			return err
		}

		if _, err := eventStmt.Exec(structs.Values(entry)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", eventTable, err)
		}
	}

	return nil
}

func prepareInsert(
	tx *sql.Tx,
	tableName string,
	sampleEntry any,
) (*sql.Stmt, error) {
	n := structs.Names(sampleEntry)
	for i := range n {
		n[i] = "?"
	}

	stmt, err := tx.Prepare("INSERT INTO " + tableName +
		" VALUES (" + strings.Join(n, ", ") + ")")
	if err != nil {
		return nil, fmt.Errorf(
			"failed to prepare insert into %s: %w", tableName, err)
	}

	return stmt, nil
}

func toEventEntry(
	sessionID string,
	seq int,
	e tracing.TraceEvent,
) (eventEntry, error) {
	args := ""
	if e.Args != nil {
		data, err := json.Marshal(e.Args)
		if err != nil {
			return eventEntry{}, fmt.Errorf(
				"failed to encode args of event %d: %w", seq, err)
		}

		args = string(data)
	}

	return eventEntry{
		SessionID: sessionID,
		Seq:       seq,
		Name:      e.Name,
		Cat:       e.Cat,
		Ph:        string(e.Ph),
		Ts:        e.Ts,
		Pid:       e.Pid,
		Tid:       e.Tid.String(),
		TidNamed:  e.Tid.Name != "",
		ObjectID:  e.ID,
		Args:      args,
		Cname:     e.Cname,
	}, nil
}
