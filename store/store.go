// Package store keeps presence events in SQLite so alerts survive restarts.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/LdDl/presence-go/presence"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// schema.sql creates the presence_events table and its indexes.
//
//go:embed schema.sql
var schemaSQL string

// EventStore is an append-only log of presence events
type EventStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open event store %s", path)
	}
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply event store schema")
	}
	return &EventStore{db: db}, nil
}

// Close releases the database
func (store *EventStore) Close() error {
	return store.db.Close()
}

// Publish stores one event. It implements session.Sink
func (store *EventStore) Publish(ctx context.Context, ev presence.Event) error {
	labels, err := json.Marshal(nonNil(ev.Labels))
	if err != nil {
		return errors.Wrap(err, "failed to encode labels")
	}
	query := `
		INSERT INTO presence_events (id, kind, label, labels, severity, is_unknown, at_unix_nano, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = store.db.ExecContext(ctx, query,
		ev.ID.String(),
		ev.Kind.String(),
		ev.Label,
		string(labels),
		string(ev.Severity),
		ev.Unknown,
		ev.At.UnixNano(),
		ev.Message(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert event %s", ev.ID.String())
	}
	return nil
}

// Recent returns up to limit latest events, newest first
func (store *EventStore) Recent(ctx context.Context, limit int) ([]presence.Event, error) {
	query := `
		SELECT id, kind, label, labels, severity, is_unknown, at_unix_nano
		FROM presence_events
		ORDER BY at_unix_nano DESC, rowid DESC
		LIMIT ?
	`
	return store.query(ctx, query, limit)
}

// ForLabel returns every event that names the label, oldest first. Aggregate events are not included
func (store *EventStore) ForLabel(ctx context.Context, label string) ([]presence.Event, error) {
	query := `
		SELECT id, kind, label, labels, severity, is_unknown, at_unix_nano
		FROM presence_events
		WHERE label = ?
		ORDER BY at_unix_nano ASC, rowid ASC
	`
	return store.query(ctx, query, label)
}

// CountByKind returns number of stored events per kind
func (store *EventStore) CountByKind(ctx context.Context) (map[presence.EventKind]int, error) {
	rows, err := store.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM presence_events GROUP BY kind`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count events")
	}
	defer rows.Close()

	counts := make(map[presence.EventKind]int)
	for rows.Next() {
		var text string
		var count int
		if err := rows.Scan(&text, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan event count")
		}
		kind, err := presence.ParseEventKind(text)
		if err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate event counts")
}

func (store *EventStore) query(ctx context.Context, query string, args ...any) ([]presence.Event, error) {
	rows, err := store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	events := make([]presence.Event, 0)
	for rows.Next() {
		var (
			id, kind, label, labels, severity string
			unknown                           bool
			atUnixNano                        int64
		)
		if err := rows.Scan(&id, &kind, &label, &labels, &severity, &unknown, &atUnixNano); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		ev := presence.Event{
			Label:    label,
			Severity: presence.Severity(severity),
			Unknown:  unknown,
			At:       time.Unix(0, atUnixNano),
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(err, "bad event id %q", id)
		}
		if ev.Kind, err = presence.ParseEventKind(kind); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(labels), &ev.Labels); err != nil {
			return nil, errors.Wrapf(err, "bad labels of event %s", id)
		}
		if len(ev.Labels) == 0 {
			ev.Labels = nil
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate events")
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
