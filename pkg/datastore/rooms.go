package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NicolasHaas/matchlobby/pkg/model"
)

// CreateRoom inserts a room record. A reused id yields ErrDuplicate.
func (s *baseProvider) CreateRoom(room *model.RoomRecord) error {
	if room.ID == "" || room.Owner == "" {
		return fmt.Errorf("datastore: create room: id and owner are required")
	}
	_, err := s.ExecContext(context.Background(),
		"INSERT INTO rooms (id, owner, public, open) VALUES (?, ?, ?, ?)",
		room.ID, room.Owner, boolToInt(room.Public), boolToInt(room.Open))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datastore: create room %q: %w", room.ID, ErrDuplicate)
		}
		return fmt.Errorf("datastore: create room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room record by id.
func (s *baseProvider) GetRoom(id string) (*model.RoomRecord, error) {
	r := &model.RoomRecord{}
	var public, open int
	var createdAt string
	err := s.QueryRowContext(context.Background(),
		"SELECT id, owner, public, open, created_at FROM rooms WHERE id = ?", id).
		Scan(&r.ID, &r.Owner, &public, &open, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get room: %w", err)
	}
	r.Public, r.Open = public == 1, open == 1
	if r.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("datastore: get room: %w", err)
	}
	return r, nil
}

// ListRooms returns every room record, oldest first.
func (s *baseProvider) ListRooms() ([]model.RoomRecord, error) {
	rows, err := s.QueryContext(context.Background(),
		"SELECT id, owner, public, open, created_at FROM rooms ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []model.RoomRecord
	for rows.Next() {
		var r model.RoomRecord
		var public, open int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Owner, &public, &open, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan room: %w", err)
		}
		r.Public, r.Open = public == 1, open == 1
		if r.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// SetRoomOpen flips a room between open and playing.
func (s *baseProvider) SetRoomOpen(id string, open bool) error {
	res, err := s.ExecContext(context.Background(), "UPDATE rooms SET open = ? WHERE id = ?", boolToInt(open), id)
	if err != nil {
		return fmt.Errorf("datastore: set room open: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("datastore: set room open %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRoom removes a room record. Deleting a missing room is not an error.
func (s *baseProvider) DeleteRoom(id string) error {
	if _, err := s.ExecContext(context.Background(), "DELETE FROM rooms WHERE id = ?", id); err != nil {
		return fmt.Errorf("datastore: delete room: %w", err)
	}
	return nil
}

// DeleteAllRooms clears every room record and reports how many were removed.
func (s *baseProvider) DeleteAllRooms() (int64, error) {
	res, err := s.ExecContext(context.Background(), "DELETE FROM rooms")
	if err != nil {
		return 0, fmt.Errorf("datastore: delete rooms: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
