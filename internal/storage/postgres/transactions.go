package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/larexx40/gowagr-test/internal/domain"
)

func (s *Store) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, initiator_id, recipient_id, amount, type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		txn.ID, txn.InitiatorID, nullString(txn.RecipientID),
		txn.Amount, string(txn.Type), string(txn.Status),
		txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapLockErr(err))
	}
	return nil
}

// ListTransactionsByUser returns one page of transactions where the user is
// either initiator or recipient, newest first, plus the unpaginated total.
// Filters are conjunctive; date bounds are inclusive.
func (s *Store) ListTransactionsByUser(ctx context.Context, userID string, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	var where strings.Builder
	where.WriteString(`WHERE (t.initiator_id = $1 OR t.recipient_id = $1)`)
	args := []any{userID}

	next := func(arg any) string {
		args = append(args, arg)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Type != "" {
		where.WriteString(` AND t.type = ` + next(string(f.Type)))
	}
	if f.Status != "" {
		where.WriteString(` AND t.status = ` + next(string(f.Status)))
	}
	if f.StartDate != nil {
		where.WriteString(` AND t.created_at >= ` + next(*f.StartDate))
	}
	if f.EndDate != nil {
		where.WriteString(` AND t.created_at <= ` + next(*f.EndDate))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions t ` + where.String()
	if err := s.conn(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `
		SELECT t.id, t.initiator_id, t.recipient_id, t.amount, t.type, t.status,
			t.created_at, t.updated_at,
			iu.firstname, iu.lastname, iu.username,
			ru.firstname, ru.lastname, ru.username
		FROM transactions t
		JOIN users iu ON iu.id = t.initiator_id
		LEFT JOIN users ru ON ru.id = t.recipient_id
		` + where.String() + `
		ORDER BY t.created_at DESC, t.id
		LIMIT ` + next(f.Limit) + ` OFFSET ` + next(f.Offset)

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var txType, txStatus string
		var recipientID sql.NullString
		var initiator domain.MiniProfile
		var rFirst, rLast, rUsername sql.NullString

		if err := rows.Scan(
			&txn.ID, &txn.InitiatorID, &recipientID, &txn.Amount, &txType, &txStatus,
			&txn.CreatedAt, &txn.UpdatedAt,
			&initiator.Firstname, &initiator.Lastname, &initiator.Username,
			&rFirst, &rLast, &rUsername,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.Type = domain.TransactionType(txType)
		txn.Status = domain.TransactionStatus(txStatus)
		initiator.ID = txn.InitiatorID
		txn.Initiator = &initiator

		if recipientID.Valid {
			txn.RecipientID = recipientID.String
			txn.Recipient = &domain.MiniProfile{
				ID:        recipientID.String,
				Firstname: rFirst.String,
				Lastname:  rLast.String,
				Username:  rUsername.String,
			}
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, total, nil
}
