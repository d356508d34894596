// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Persists messages/polls/profiles/presence and re-emits snapshots on mutation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/2389/threadline/internal/stream"
)

// SQLiteStore implements MessageStore, PollStore, ProfileStore and
// PresenceStore on a single SQLite database. Every mutation reloads the
// affected conversation and publishes the fresh snapshot to observers, so
// clients always see full replacement state. Single-answer vote exclusivity
// is enforced inside the Vote transaction; this is the one authoritative
// layer for that invariant.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	msgCast      *stream.Broadcaster[[]*Message]
	pollCast     *stream.Broadcaster[[]*Poll]
	presenceCast *stream.Broadcaster[[]string]
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema is
// automatically created if it doesn't exist. Parent directories are created
// if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		logger:       logger,
		msgCast:      stream.NewBroadcaster[[]*Message](logger),
		pollCast:     stream.NewBroadcaster[[]*Poll](logger),
		presenceCast: stream.NewBroadcaster[[]string](logger),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			timestamp DATETIME NOT NULL,
			edited INTEGER NOT NULL DEFAULT 0,
			location_lat REAL,
			location_lng REAL,
			location_name TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, timestamp);

		CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS polls (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			creator_name TEXT NOT NULL,
			question TEXT NOT NULL,
			anonymous INTEGER NOT NULL DEFAULT 0,
			allow_multiple_answers INTEGER NOT NULL DEFAULT 0,
			closed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			closed_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_polls_conversation
			ON polls(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS poll_options (
			poll_id TEXT NOT NULL,
			option_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (poll_id, option_id),
			FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id TEXT NOT NULL,
			option_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (poll_id, option_id, user_id),
			FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			photo_url TEXT
		);

		CREATE TABLE IF NOT EXISTS presence (
			context_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (context_id, user_id)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database and all observer channels.
func (s *SQLiteStore) Close() error {
	s.msgCast.Close()
	s.pollCast.Close()
	s.presenceCast.Close()
	return s.db.Close()
}

// NewID returns a fresh unique id.
func (s *SQLiteStore) NewID() string {
	return uuid.New().String()
}

// --- MessageStore ---

// ObserveMessages streams message snapshots for a conversation: the current
// snapshot immediately, then a full replacement after every mutation.
func (s *SQLiteStore) ObserveMessages(ctx context.Context, conversationID string) (<-chan []*Message, func(), error) {
	initial, err := s.loadMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	sub, subID := s.msgCast.Subscribe(ctx, conversationID)
	out := make(chan []*Message, 1)
	out <- initial

	go func() {
		defer close(out)
		for snap := range sub {
			out <- snap
		}
	}()

	cancel := func() { s.msgCast.Unsubscribe(conversationID, subID) }
	return out, cancel, nil
}

// Add inserts a message and its read receipts.
func (s *SQLiteStore) Add(ctx context.Context, msg *Message) error {
	var lat, lng any
	var locName any
	if msg.Location != nil {
		lat, lng, locName = msg.Location.Latitude, msg.Location.Longitude, msg.Location.Name
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, type, timestamp, edited, location_lat, location_lng, location_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Content,
		string(msg.Type), msg.Timestamp.Format(time.RFC3339Nano), boolToInt(msg.Edited),
		lat, lng, locName,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	for _, userID := range msg.ReadBy {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
			msg.ID, userID); err != nil {
			return fmt.Errorf("inserting read receipt: %w", err)
		}
	}

	s.emitMessages(msg.ConversationID)
	return nil
}

// Edit updates a message's content and edited flag. Type, timestamp and
// sender are immutable.
func (s *SQLiteStore) Edit(ctx context.Context, msg *Message) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, edited = ? WHERE id = ? AND conversation_id = ?`,
		msg.Content, boolToInt(msg.Edited), msg.ID, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.emitMessages(msg.ConversationID)
	return nil
}

// Delete removes a message; its read receipts cascade.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, conversationID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.emitMessages(conversationID)
	return nil
}

// MarkRead records a read receipt. Idempotent: a receipt that already exists
// is ignored and does not re-emit.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, messageID, userID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up message: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		messageID, userID)
	if err != nil {
		return fmt.Errorf("inserting read receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.emitMessages(conversationID)
	}
	return nil
}

// --- PollStore ---

// ObservePolls streams poll snapshots for a conversation with the same
// contract as ObserveMessages.
func (s *SQLiteStore) ObservePolls(ctx context.Context, conversationID string) (<-chan []*Poll, func(), error) {
	initial, err := s.loadPolls(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	sub, subID := s.pollCast.Subscribe(ctx, conversationID)
	out := make(chan []*Poll, 1)
	out <- initial

	go func() {
		defer close(out)
		for snap := range sub {
			out <- snap
		}
	}()

	cancel := func() { s.pollCast.Unsubscribe(conversationID, subID) }
	return out, cancel, nil
}

// Create inserts a poll and its options in one transaction.
func (s *SQLiteStore) Create(ctx context.Context, poll *Poll) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO polls (id, conversation_id, creator_id, creator_name, question, anonymous, allow_multiple_answers, closed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		poll.ID, poll.ConversationID, poll.CreatorID, poll.CreatorName, poll.Question,
		boolToInt(poll.Anonymous), boolToInt(poll.AllowMultipleAnswers), boolToInt(poll.Closed),
		poll.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting poll: %w", err)
	}
	for _, opt := range poll.Options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_options (poll_id, option_id, text) VALUES (?, ?, ?)`,
			poll.ID, opt.ID, opt.Text); err != nil {
			return fmt.Errorf("inserting poll option: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing poll: %w", err)
	}

	s.emitPolls(poll.ConversationID)
	return nil
}

// Vote records a vote inside one transaction. For single-answer polls the
// user's prior memberships across all options are deleted before the new
// vote is inserted, so exclusivity holds regardless of client toggling
// order.
func (s *SQLiteStore) Vote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var allowMultiple int
	err = tx.QueryRowContext(ctx,
		`SELECT allow_multiple_answers FROM polls WHERE id = ? AND conversation_id = ?`,
		pollID, conversationID).Scan(&allowMultiple)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up poll: %w", err)
	}

	var optExists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM poll_options WHERE poll_id = ? AND option_id = ?`,
		pollID, optionID).Scan(&optExists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up option: %w", err)
	}

	if allowMultiple == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM poll_votes WHERE poll_id = ? AND user_id = ?`,
			pollID, userID); err != nil {
			return fmt.Errorf("clearing prior votes: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO poll_votes (poll_id, option_id, user_id) VALUES (?, ?, ?)`,
		pollID, optionID, userID); err != nil {
		return fmt.Errorf("inserting vote: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vote: %w", err)
	}

	s.emitPolls(conversationID)
	return nil
}

// RemoveVote deletes a single (option, user) membership.
func (s *SQLiteStore) RemoveVote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM poll_votes WHERE poll_id = ? AND option_id = ? AND user_id = ?
			AND poll_id IN (SELECT id FROM polls WHERE conversation_id = ?)`,
		pollID, optionID, userID, conversationID)
	if err != nil {
		return fmt.Errorf("removing vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.emitPolls(conversationID)
	}
	return nil
}

// ClosePoll closes a poll. Creator only.
func (s *SQLiteStore) ClosePoll(ctx context.Context, conversationID, pollID, userID string) error {
	return s.setClosed(ctx, conversationID, pollID, userID, true)
}

// ReopenPoll reopens a closed poll. Creator only.
func (s *SQLiteStore) ReopenPoll(ctx context.Context, conversationID, pollID, userID string) error {
	return s.setClosed(ctx, conversationID, pollID, userID, false)
}

func (s *SQLiteStore) setClosed(ctx context.Context, conversationID, pollID, userID string, closed bool) error {
	var closedAt any
	if closed {
		closedAt = time.Now().Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE polls SET closed = ?, closed_at = ? WHERE id = ? AND conversation_id = ? AND creator_id = ?`,
		boolToInt(closed), closedAt, pollID, conversationID, userID)
	if err != nil {
		return fmt.Errorf("updating poll: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.pollMissingReason(ctx, conversationID, pollID)
	}

	s.emitPolls(conversationID)
	return nil
}

// DeletePoll removes a poll; options and votes cascade. Creator only. The
// companion POLL message is left in place and becomes a dangling reference
// that the merge layer drops.
func (s *SQLiteStore) DeletePoll(ctx context.Context, conversationID, pollID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM polls WHERE id = ? AND conversation_id = ? AND creator_id = ?`,
		pollID, conversationID, userID)
	if err != nil {
		return fmt.Errorf("deleting poll: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.pollMissingReason(ctx, conversationID, pollID)
	}

	s.emitPolls(conversationID)
	return nil
}

// pollMissingReason distinguishes a missing poll from a creator mismatch
// after a zero-row mutation.
func (s *SQLiteStore) pollMissingReason(ctx context.Context, conversationID, pollID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM polls WHERE id = ? AND conversation_id = ?`,
		pollID, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up poll: %w", err)
	}
	return ErrNotCreator
}

// --- ProfileStore ---

// Get returns the profile for userID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	var photo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, photo_url FROM profiles WHERE id = ?`,
		userID).Scan(&p.ID, &p.Username, &photo)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	p.PhotoURL = photo.String
	return &p, nil
}

// PutProfile inserts or replaces a profile row.
func (s *SQLiteStore) PutProfile(ctx context.Context, p *Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles (id, username, photo_url) VALUES (?, ?, ?)`,
		p.ID, p.Username, p.PhotoURL)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// --- PresenceStore ---

// ObserveOnlineIDs streams the online id list for a context, excluding the
// given user.
func (s *SQLiteStore) ObserveOnlineIDs(ctx context.Context, contextID, excludingUserID string) (<-chan []string, func(), error) {
	initial, err := s.loadOnline(ctx, contextID, excludingUserID)
	if err != nil {
		return nil, nil, err
	}

	sub, subID := s.presenceCast.Subscribe(ctx, contextID)
	out := make(chan []string, 1)
	out <- initial

	go func() {
		defer close(out)
		for raw := range sub {
			filtered := make([]string, 0, len(raw))
			for _, id := range raw {
				if id != excludingUserID {
					filtered = append(filtered, id)
				}
			}
			out <- filtered
		}
	}()

	cancel := func() { s.presenceCast.Unsubscribe(contextID, subID) }
	return out, cancel, nil
}

// SetOnline marks userID online in a context.
func (s *SQLiteStore) SetOnline(ctx context.Context, contextID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO presence (context_id, user_id) VALUES (?, ?)`,
		contextID, userID)
	if err != nil {
		return fmt.Errorf("setting online: %w", err)
	}
	s.emitPresence(contextID)
	return nil
}

// SetOffline marks userID offline in a context.
func (s *SQLiteStore) SetOffline(ctx context.Context, contextID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM presence WHERE context_id = ? AND user_id = ?`,
		contextID, userID)
	if err != nil {
		return fmt.Errorf("setting offline: %w", err)
	}
	s.emitPresence(contextID)
	return nil
}

// --- loaders and emission ---

func (s *SQLiteStore) loadMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, content, type, timestamp, edited, location_lat, location_lng, location_name
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	byID := make(map[string]*Message)
	for rows.Next() {
		var m Message
		var ts, typ string
		var edited int
		var lat, lng sql.NullFloat64
		var locName sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content,
			&typ, &ts, &edited, &lat, &lng, &locName); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Type = MessageType(typ)
		m.Edited = edited != 0
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing message timestamp: %w", err)
		}
		if lat.Valid && lng.Valid {
			m.Location = &Location{Latitude: lat.Float64, Longitude: lng.Float64, Name: locName.String}
		}
		msgs = append(msgs, &m)
		byID[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	readRows, err := s.db.QueryContext(ctx, `
		SELECT r.message_id, r.user_id FROM message_reads r
		JOIN messages m ON m.id = r.message_id
		WHERE m.conversation_id = ?`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading read receipts: %w", err)
	}
	defer readRows.Close()
	for readRows.Next() {
		var msgID, userID string
		if err := readRows.Scan(&msgID, &userID); err != nil {
			return nil, fmt.Errorf("scanning read receipt: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return msgs, readRows.Err()
}

func (s *SQLiteStore) loadPolls(ctx context.Context, conversationID string) ([]*Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, creator_id, creator_name, question, anonymous, allow_multiple_answers, closed, created_at, closed_at
		FROM polls WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading polls: %w", err)
	}
	defer rows.Close()

	var polls []*Poll
	byID := make(map[string]*Poll)
	for rows.Next() {
		var p Poll
		var createdAt string
		var closedAt sql.NullString
		var anonymous, multiple, closed int
		if err := rows.Scan(&p.ID, &p.ConversationID, &p.CreatorID, &p.CreatorName, &p.Question,
			&anonymous, &multiple, &closed, &createdAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scanning poll: %w", err)
		}
		p.Anonymous = anonymous != 0
		p.AllowMultipleAnswers = multiple != 0
		p.Closed = closed != 0
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing poll timestamp: %w", err)
		}
		if closedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, closedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing poll closed timestamp: %w", err)
			}
			p.ClosedAt = &t
		}
		polls = append(polls, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating polls: %w", err)
	}

	optRows, err := s.db.QueryContext(ctx, `
		SELECT o.poll_id, o.option_id, o.text FROM poll_options o
		JOIN polls p ON p.id = o.poll_id
		WHERE p.conversation_id = ? ORDER BY o.poll_id, o.option_id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading poll options: %w", err)
	}
	defer optRows.Close()
	for optRows.Next() {
		var pollID, text string
		var optionID int
		if err := optRows.Scan(&pollID, &optionID, &text); err != nil {
			return nil, fmt.Errorf("scanning poll option: %w", err)
		}
		if p, ok := byID[pollID]; ok {
			p.Options = append(p.Options, PollOption{ID: optionID, Text: text})
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll options: %w", err)
	}

	voteRows, err := s.db.QueryContext(ctx, `
		SELECT v.poll_id, v.option_id, v.user_id FROM poll_votes v
		JOIN polls p ON p.id = v.poll_id
		WHERE p.conversation_id = ?`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading poll votes: %w", err)
	}
	defer voteRows.Close()
	for voteRows.Next() {
		var pollID, userID string
		var optionID int
		if err := voteRows.Scan(&pollID, &optionID, &userID); err != nil {
			return nil, fmt.Errorf("scanning poll vote: %w", err)
		}
		p, ok := byID[pollID]
		if !ok {
			continue
		}
		if opt := p.Option(optionID); opt != nil {
			opt.Voters = append(opt.Voters, userID)
		}
	}
	return polls, voteRows.Err()
}

func (s *SQLiteStore) loadOnline(ctx context.Context, contextID, excludingUserID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM presence WHERE context_id = ? AND user_id != ? ORDER BY user_id`,
		contextID, excludingUserID)
	if err != nil {
		return nil, fmt.Errorf("loading presence: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning presence: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// emitMessages reloads and publishes a conversation's message snapshot.
// Emission uses its own short context so persistence completing after a
// request's cancellation still reaches observers.
func (s *SQLiteStore) emitMessages(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := s.loadMessages(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to load message snapshot", "conversation_id", conversationID, "error", err)
		return
	}
	s.msgCast.Publish(conversationID, snap)
}

func (s *SQLiteStore) emitPolls(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := s.loadPolls(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to load poll snapshot", "conversation_id", conversationID, "error", err)
		return
	}
	s.pollCast.Publish(conversationID, snap)
}

// emitPresence publishes the raw (unfiltered) online list; each observer
// goroutine filters out its own excluded user.
func (s *SQLiteStore) emitPresence(contextID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM presence WHERE context_id = ? ORDER BY user_id`, contextID)
	if err != nil {
		s.logger.Error("failed to load presence snapshot", "context_id", contextID, "error", err)
		return
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.logger.Error("failed to scan presence snapshot", "context_id", contextID, "error", err)
			return
		}
		ids = append(ids, id)
	}
	s.presenceCast.Publish(contextID, ids)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
