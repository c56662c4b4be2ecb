package datarecording

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sarchlab/sessionprof/tracing"
)

// SessionInfo describes a session recorded in a SQLiteStore.
type SessionInfo struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	NumEvents int    `json:"num_events"`
	SavedAt   string `json:"saved_at"`
}

// ListSessions returns the recorded sessions, oldest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT ID, Path, Name, Version, NumEvents, SavedAt FROM "+
			sessionTable+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionInfo, 0)
	for rows.Next() {
		var info SessionInfo

		err := rows.Scan(&info.ID, &info.Path, &info.Name,
			&info.Version, &info.NumEvents, &info.SavedAt)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, info)
	}

	return sessions, rows.Err()
}

// LoadReport rebuilds the report of a recorded session.
func (s *SQLiteStore) LoadReport(
	ctx context.Context,
	sessionID string,
) (tracing.Report, error) {
	var version string

	err := s.QueryRowContext(ctx,
		"SELECT Version FROM "+sessionTable+" WHERE ID = ?", sessionID).
		Scan(&version)
	if err != nil {
		return tracing.Report{}, fmt.Errorf(
			"failed to find session %s: %w", sessionID, err)
	}

	rows, err := s.QueryContext(ctx,
		"SELECT Name, Cat, Ph, Ts, Pid, Tid, TidNamed, ObjectID, Args, Cname "+
			"FROM "+eventTable+" WHERE SessionID = ? ORDER BY Seq", sessionID)
	if err != nil {
		return tracing.Report{}, fmt.Errorf(
			"failed to read events of session %s: %w", sessionID, err)
	}
	defer rows.Close()

	report := tracing.Report{
		TraceEvents: make([]tracing.TraceEvent, 0),
		OtherData:   tracing.OtherData{Version: version},
	}

	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return tracing.Report{}, err
		}

		report.TraceEvents = append(report.TraceEvents, e)
	}

	return report, rows.Err()
}

func scanEvent(scan func(dest ...any) error) (tracing.TraceEvent, error) {
	var (
		e        tracing.TraceEvent
		ph       string
		tid      string
		tidNamed bool
		args     string
	)

	err := scan(&e.Name, &e.Cat, &ph, &e.Ts, &e.Pid, &tid, &tidNamed,
		&e.ID, &args, &e.Cname)
	if err != nil {
		return e, err
	}

	e.Ph = tracing.Phase(ph)

	if tidNamed {
		e.Tid = tracing.ThreadID{Name: tid}
	} else {
		num, err := strconv.ParseUint(tid, 10, 64)
		if err != nil {
			return e, fmt.Errorf("invalid thread id %q: %w", tid, err)
		}

		e.Tid = tracing.ThreadID{Num: num}
	}

	if args != "" {
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			return e, fmt.Errorf("invalid args %q: %w", args, err)
		}
	}

	return e, nil
}
