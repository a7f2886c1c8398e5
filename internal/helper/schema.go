package helper

import (
	"database/sql"
	"log"
	"strings"

	"mangwale-chat/database"
)

const postgresSchema = `
    CREATE TABLE IF NOT EXISTS chat_sessions (
        id              VARCHAR(128) PRIMARY KEY,
        phone_number    VARCHAR(50) NOT NULL DEFAULT '',
        platform        VARCHAR(20) NOT NULL DEFAULT 'web',
        current_step    VARCHAR(100) NOT NULL DEFAULT '',
        module          VARCHAR(50) NOT NULL DEFAULT '',
        authenticated   BOOLEAN NOT NULL DEFAULT false,
        user_name       VARCHAR(255) NOT NULL DEFAULT '',
        lat             DOUBLE PRECISION,
        lng             DOUBLE PRECISION,
        data            TEXT,
        created_at      BIGINT NOT NULL,
        updated_at      BIGINT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        seq             BIGSERIAL PRIMARY KEY,
        id              VARCHAR(128) UNIQUE NOT NULL,
        session_id      VARCHAR(128) NOT NULL,
        role            VARCHAR(20) NOT NULL,
        content         TEXT NOT NULL,
        client_message_id VARCHAR(128) NOT NULL DEFAULT '',
        created_at      BIGINT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
`

// mysql has no CREATE INDEX IF NOT EXISTS, so the index lives in the table definition.
const mysqlSchema = `
    CREATE TABLE IF NOT EXISTS chat_sessions (
        id              VARCHAR(128) PRIMARY KEY,
        phone_number    VARCHAR(50) NOT NULL DEFAULT '',
        platform        VARCHAR(20) NOT NULL DEFAULT 'web',
        current_step    VARCHAR(100) NOT NULL DEFAULT '',
        module          VARCHAR(50) NOT NULL DEFAULT '',
        authenticated   BOOLEAN NOT NULL DEFAULT false,
        user_name       VARCHAR(255) NOT NULL DEFAULT '',
        lat             DOUBLE,
        lng             DOUBLE,
        data            TEXT,
        created_at      BIGINT NOT NULL,
        updated_at      BIGINT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        seq             BIGINT AUTO_INCREMENT PRIMARY KEY,
        id              VARCHAR(128) UNIQUE NOT NULL,
        session_id      VARCHAR(128) NOT NULL,
        role            VARCHAR(20) NOT NULL,
        content         TEXT NOT NULL,
        client_message_id VARCHAR(128) NOT NULL DEFAULT '',
        created_at      BIGINT NOT NULL,
        INDEX idx_chat_messages_session (session_id, created_at)
    );
`

// SchemaStatements returns the DDL for driver, one statement per entry.
func SchemaStatements(driver string) []string {
	schema := postgresSchema
	if driver == database.DriverMySQL {
		schema = mysqlSchema
	}
	return splitStatements(schema)
}

// InitCustomSchema creates the chat tables. Run with --createschema.
func InitCustomSchema(db *sql.DB, driver string) {
	for _, stmt := range SchemaStatements(driver) {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("failed to init chat schema: %v", err)
		}
	}
	log.Println("✅ chat schema ready")
}

// mysql rejects multi-statement Exec unless the DSN opts in.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
