package postgres

// SQL queries for actor lookups against the host schema and guest session persistence.

const (
	// queryFindActor loads one actor with its primary email and SSO record, if any.
	queryFindActor = `
		SELECT
			u.id, COALESCE(u.name, ''), u.username, COALESCE(e.email, ''),
			u.created_at, COALESCE(HOST(u.ip_address), ''), COALESCE(s.external_id, '')
		FROM users u
		LEFT JOIN user_emails e ON e.user_id = u.id AND e."primary"
		LEFT JOIN single_sign_on_records s ON s.user_id = u.id
		WHERE u.id = $1
	`

	// queryListActorIDsAfter pages actor ids by cursor for the identify backfill.
	// The cursor starts at 0, so negative-id system accounts are never listed.
	queryListActorIDsAfter = `
		SELECT id
		FROM users
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`

	// queryFindSSOExternalID resolves the SSO external id for one actor.
	queryFindSSOExternalID = `
		SELECT external_id
		FROM single_sign_on_records
		WHERE user_id = $1
		LIMIT 1
	`

	// queryLoadSessionValue reads one value from a guest session.
	queryLoadSessionValue = `
		SELECT value
		FROM guest_sessions
		WHERE session_id = $1 AND key = $2
	`

	// querySaveSessionValue upserts one value in a guest session.
	querySaveSessionValue = `
		INSERT INTO guest_sessions (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	// queryTableExists checks for a table in the current search path.
	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`
)
