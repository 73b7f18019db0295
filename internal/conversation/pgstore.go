package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/db"
)

// PGStore is the Postgres conversation store. The phone column carries a
// unique constraint; Upsert and MarkProcessed are single statements so
// concurrent arrivals for the same phone serialize on the row.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const recordColumns = `phone, channel_handle, user_id, state,
	COALESCE(service_id::text, ''), COALESCE(ticket_key, ''), COALESCE(thread_id, ''),
	recent_message_ids, created_at, updated_at`

func (s *PGStore) Get(ctx context.Context, phone string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE phone = $1`, phone)
	return scanRecord(row)
}

func (s *PGStore) Upsert(ctx context.Context, phone, channelHandle, userID string) (Record, error) {
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return Record{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (phone, channel_handle, user_id, state, recent_message_ids)
		VALUES ($1, $2, $3, '`+StatePreSelection+`', '{}')
		ON CONFLICT (phone) DO UPDATE SET
			channel_handle = EXCLUDED.channel_handle,
			updated_at     = now()
		RETURNING `+recordColumns, phone, channelHandle, pgUserID)
	return scanRecord(row)
}

func (s *PGStore) Activate(ctx context.Context, phone, ticketKey, serviceID string) (Record, error) {
	pgServiceID, err := db.ParseUUID(serviceID)
	if err != nil {
		return Record{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET state = '`+StateActive+`', ticket_key = $2, service_id = $3, updated_at = now()
		WHERE phone = $1
		RETURNING `+recordColumns, phone, ticketKey, pgServiceID)
	return scanRecord(row)
}

func (s *PGStore) Reset(ctx context.Context, phone string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET state = '`+StatePreSelection+`', ticket_key = NULL, service_id = NULL,
		    thread_id = NULL, updated_at = now()
		WHERE phone = $1
		RETURNING `+recordColumns, phone)
	return scanRecord(row)
}

func (s *PGStore) SetThread(ctx context.Context, phone, threadID string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET thread_id = $2, updated_at = now()
		WHERE phone = $1
		RETURNING `+recordColumns, phone, threadID)
	return scanRecord(row)
}

func (s *PGStore) FindByTicketKey(ctx context.Context, ticketKey string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE ticket_key = $1 AND state = '`+StateActive+`'`, ticketKey)
	return scanRecord(row)
}

// MarkProcessed prepends msgID to the dedup window in one conditional
// UPDATE. The WHERE clause rejects already-seen ids, so check-and-mark is a
// single atomic statement; a zero rows-affected result with an existing row
// means duplicate.
func (s *PGStore) MarkProcessed(ctx context.Context, phone, msgID string, limit int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET recent_message_ids = (ARRAY[$2]::text[] || recent_message_ids)[1:$3],
		    updated_at = now()
		WHERE phone = $1 AND NOT (recent_message_ids @> ARRAY[$2]::text[])`,
		phone, msgID, limit)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish a duplicate from a missing record.
	if _, err := s.Get(ctx, phone); err != nil {
		return false, err
	}
	return false, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		record    Record
		userID    pgtype.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&record.Phone, &record.ChannelHandle, &userID, &record.State,
		&record.ServiceID, &record.TicketKey, &record.ThreadID,
		&record.RecentMessageIDs, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	record.UserID = db.UUIDString(userID)
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return record, nil
}
