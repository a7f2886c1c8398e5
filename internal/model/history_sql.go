package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mangwale-chat/database"
)

// SQLHistoryStore keeps history in postgres or mysql. Queries are written with
// $n placeholders and rebound for mysql.
type SQLHistoryStore struct {
	db     *sql.DB
	driver string
}

func NewSQLHistoryStore(db *sql.DB, driver string) *SQLHistoryStore {
	return &SQLHistoryStore{db: db, driver: driver}
}

func (s *SQLHistoryStore) AppendMessage(ctx context.Context, msg StoredMessage) error {
	query := `
		INSERT INTO chat_messages (id, session_id, role, content, client_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, database.Rebind(s.driver, query),
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.ClientMessageID, msg.Timestamp)
	return err
}

func (s *SQLHistoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	query := `
		SELECT id, session_id, role, content, client_message_id, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, database.Rebind(s.driver, query), sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.ClientMessageID, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest first dari query, dibalik supaya urut kronologis
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLHistoryStore) SaveSession(ctx context.Context, session Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}

	var lat, lng sql.NullFloat64
	if session.Location != nil {
		lat = sql.NullFloat64{Float64: session.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: session.Location.Lng, Valid: true}
	}

	query := `
		INSERT INTO chat_sessions (id, phone_number, platform, current_step, module, authenticated,
			user_name, lat, lng, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if s.driver == database.DriverPostgres {
		query += `
		ON CONFLICT (id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number, platform = EXCLUDED.platform,
			current_step = EXCLUDED.current_step, module = EXCLUDED.module,
			authenticated = EXCLUDED.authenticated, user_name = EXCLUDED.user_name,
			lat = EXCLUDED.lat, lng = EXCLUDED.lng, data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		`
	} else {
		query += `
		ON DUPLICATE KEY UPDATE
			phone_number = VALUES(phone_number), platform = VALUES(platform),
			current_step = VALUES(current_step), module = VALUES(module),
			authenticated = VALUES(authenticated), user_name = VALUES(user_name),
			lat = VALUES(lat), lng = VALUES(lng), data = VALUES(data),
			updated_at = VALUES(updated_at)
		`
	}

	_, err = s.db.ExecContext(ctx, database.Rebind(s.driver, query),
		session.ID, session.PhoneNumber, string(session.Platform), session.CurrentStep, session.Module,
		session.Authenticated, session.UserName, lat, lng, string(data), session.CreatedAt, session.UpdatedAt)
	return err
}

func (s *SQLHistoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, phone_number, platform, current_step, module, authenticated,
		       user_name, lat, lng, data, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1
	`
	var (
		session  Session
		platform string
		lat, lng sql.NullFloat64
		data     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, database.Rebind(s.driver, query), id).Scan(
		&session.ID,
		&session.PhoneNumber,
		&platform,
		&session.CurrentStep,
		&session.Module,
		&session.Authenticated,
		&session.UserName,
		&lat,
		&lng,
		&data,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	session.Platform = Platform(platform)
	if lat.Valid && lng.Valid {
		session.Location = &Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if data.Valid && data.String != "" && data.String != "null" {
		if err := json.Unmarshal([]byte(data.String), &session.Data); err != nil {
			return nil, fmt.Errorf("decode session data: %w", err)
		}
	}
	return &session, nil
}
