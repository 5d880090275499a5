package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	queries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{db: pool}, pool: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{queries: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries holds the statements usable both inside and outside a transaction.
type queries struct {
	db dbtx
}

const acceptanceColumns = `id, provider_npi, plan_id, location_id, acceptance_status,
	confidence_score, confidence_level, verification_count, data_source,
	last_verified, expires_at, created_at, updated_at`

func scanAcceptance(row pgx.Row) (*model.AcceptanceAggregate, error) {
	var (
		a             model.AcceptanceAggregate
		status, level string
		source        *string
	)
	err := row.Scan(&a.ID, &a.ProviderNPI, &a.PlanID, &a.LocationID, &status,
		&a.ConfidenceScore, &level, &a.VerificationCount, &source,
		&a.LastVerified, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = model.AcceptanceStatus(status)
	a.ConfidenceLevel = model.ConfidenceLevel(level)
	if source != nil {
		ds := model.DataSource(*source)
		a.DataSource = &ds
	}
	return &a, nil
}

const verificationColumns = `id::text, provider_npi, plan_id, location_id, accepts_insurance,
	accepts_new_patients, COALESCE(notes, ''), COALESCE(evidence_url, ''), source_ip_hash,
	COALESCE(contact_hash, ''), upvotes, downvotes, is_approved, reviewed_at,
	COALESCE(reviewed_by, ''), created_at, expires_at`

func scanVerification(row pgx.Row) (*model.VerificationRecord, error) {
	var v model.VerificationRecord
	err := row.Scan(&v.ID, &v.ProviderNPI, &v.PlanID, &v.LocationID, &v.AcceptsInsurance,
		&v.AcceptsNewPatients, &v.Notes, &v.EvidenceURL, &v.SourceIPHash,
		&v.ContactHash, &v.Upvotes, &v.Downvotes, &v.IsApproved, &v.ReviewedAt,
		&v.ReviewedBy, &v.CreatedAt, &v.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVerifications(rows pgx.Rows) ([]model.VerificationRecord, error) {
	defer rows.Close()
	var out []model.VerificationRecord
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (q queries) GetAcceptance(ctx context.Context, npi, planID string) (*model.AcceptanceAggregate, error) {
	return scanAcceptance(q.db.QueryRow(ctx, `
		SELECT `+acceptanceColumns+`
		FROM provider_plan_acceptance
		WHERE provider_npi = $1 AND plan_id = $2`,
		npi, planID))
}

func (q queries) ListAcceptancePage(ctx context.Context, afterID int64, limit int) ([]model.AcceptanceAggregate, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+acceptanceColumns+`
		FROM provider_plan_acceptance
		WHERE id > $1
		ORDER BY id
		LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AcceptanceAggregate
	for rows.Next() {
		a, err := scanAcceptance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (q queries) RecentForPair(ctx context.Context, npi, planID string, now time.Time, limit int) ([]model.VerificationRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_logs
		WHERE provider_npi = $1 AND plan_id = $2 AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT $4`,
		npi, planID, now, limit)
	if err != nil {
		return nil, err
	}
	return collectVerifications(rows)
}

func (q queries) RecentVerifications(ctx context.Context, now time.Time, limit int) ([]model.VerificationRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_logs
		WHERE expires_at > $1
		ORDER BY created_at DESC
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, err
	}
	return collectVerifications(rows)
}

func (q queries) ProviderSpecialty(ctx context.Context, npi string) (string, error) {
	var specialty *string
	err := q.db.QueryRow(ctx, `SELECT primary_specialty FROM providers WHERE npi = $1`, npi).Scan(&specialty)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if specialty == nil {
		return "", nil
	}
	return *specialty, nil
}

func (q queries) Stats(ctx context.Context, now time.Time) (model.StatsResponse, error) {
	var s model.StatsResponse
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM verification_logs),
			(SELECT COUNT(*) FROM verification_logs WHERE expires_at > $1),
			(SELECT COUNT(*) FROM vote_logs),
			(SELECT COUNT(*) FROM verification_logs WHERE created_at > $2)`,
		now, now.AddDate(0, 0, -30)).Scan(&s.TotalVerifications, &s.ActiveVerifications, &s.TotalVotes, &s.Last30Days)
	if err != nil {
		return s, err
	}

	rows, err := q.db.Query(ctx, `
		SELECT acceptance_status, COUNT(*)
		FROM provider_plan_acceptance
		GROUP BY acceptance_status`)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	s.ByStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		s.ByStatus[status] = n
	}
	return s, rows.Err()
}

func (q queries) CountExpired(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM verification_logs WHERE expires_at <= $1`, now).Scan(&n)
	return n, err
}

// DeleteExpired removes up to limit expired verifications; their votes
// cascade.
func (q queries) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM verification_logs
		WHERE id IN (
			SELECT id FROM verification_logs
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`,
		now, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (q queries) TallyPair(ctx context.Context, npi, planID string, now time.Time) (model.Tally, error) {
	var tally model.Tally
	err := q.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE accepts_insurance),
			COUNT(*) FILTER (WHERE NOT accepts_insurance),
			COALESCE(SUM(upvotes) FILTER (WHERE accepts_insurance), 0),
			COALESCE(SUM(downvotes) FILTER (WHERE accepts_insurance), 0),
			COALESCE(SUM(upvotes) FILTER (WHERE NOT accepts_insurance), 0),
			COALESCE(SUM(downvotes) FILTER (WHERE NOT accepts_insurance), 0),
			MAX(created_at)
		FROM verification_logs
		WHERE provider_npi = $1 AND plan_id = $2 AND expires_at > $3`,
		npi, planID, now).Scan(
		&tally.Accepted, &tally.Rejected,
		&tally.AcceptUpvotes, &tally.AcceptDownvotes,
		&tally.RejectUpvotes, &tally.RejectDownvotes,
		&tally.LastVerifiedAt,
	)
	return tally, err
}

func (q queries) ProviderExists(ctx context.Context, npi string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE npi = $1)`, npi).Scan(&ok)
	return ok, err
}

func (q queries) PlanExists(ctx context.Context, planID string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM insurance_plans WHERE plan_id = $1)`, planID).Scan(&ok)
	return ok, err
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	queries
}

func (t *pgTx) LockAcceptance(ctx context.Context, npi, planID string, now time.Time) (*model.AcceptanceAggregate, error) {
	_, err := t.db.Exec(ctx, `
		INSERT INTO provider_plan_acceptance
			(provider_npi, plan_id, acceptance_status, confidence_score, confidence_level,
			 verification_count, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, 0, $5, $5)
		ON CONFLICT (provider_npi, plan_id) DO NOTHING`,
		npi, planID, string(model.StatusUnknown), string(model.LevelVeryLow), now)
	if err != nil {
		return nil, fmt.Errorf("ensure acceptance: %w", err)
	}

	return scanAcceptance(t.db.QueryRow(ctx, `
		SELECT `+acceptanceColumns+`
		FROM provider_plan_acceptance
		WHERE provider_npi = $1 AND plan_id = $2
		FOR UPDATE`,
		npi, planID))
}

func (t *pgTx) LockAcceptanceByID(ctx context.Context, id int64) (*model.AcceptanceAggregate, error) {
	return scanAcceptance(t.db.QueryRow(ctx, `
		SELECT `+acceptanceColumns+`
		FROM provider_plan_acceptance
		WHERE id = $1
		FOR UPDATE`,
		id))
}

func (t *pgTx) UpdateAcceptance(ctx context.Context, a *model.AcceptanceAggregate) error {
	var source *string
	if a.DataSource != nil {
		s := string(*a.DataSource)
		source = &s
	}
	tag, err := t.db.Exec(ctx, `
		UPDATE provider_plan_acceptance
		SET location_id = $2, acceptance_status = $3, confidence_score = $4,
			confidence_level = $5, verification_count = $6, data_source = $7,
			last_verified = $8, expires_at = $9, updated_at = $10
		WHERE id = $1`,
		a.ID, a.LocationID, string(a.Status), a.ConfidenceScore,
		string(a.ConfidenceLevel), a.VerificationCount, source,
		a.LastVerified, a.ExpiresAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) HasRecentSubmission(ctx context.Context, npi, planID, ipHash, contactHash string, since time.Time) (SybilMatch, error) {
	var m SybilMatch
	err := t.db.QueryRow(ctx, `
		SELECT
			COALESCE(BOOL_OR(source_ip_hash = $3), false),
			COALESCE(BOOL_OR(contact_hash = $4), false)
		FROM verification_logs
		WHERE provider_npi = $1 AND plan_id = $2 AND created_at >= $5`,
		npi, planID, ipHash, nullIfEmpty(contactHash), since).Scan(&m.SameIP, &m.SameContact)
	return m, err
}

func (t *pgTx) InsertVerification(ctx context.Context, v *model.VerificationRecord) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO verification_logs
			(id, provider_npi, plan_id, location_id, accepts_insurance, accepts_new_patients,
			 notes, evidence_url, source_ip_hash, contact_hash, upvotes, downvotes,
			 created_at, expires_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.ProviderNPI, v.PlanID, v.LocationID, v.AcceptsInsurance, v.AcceptsNewPatients,
		nullIfEmpty(v.Notes), nullIfEmpty(v.EvidenceURL), v.SourceIPHash, nullIfEmpty(v.ContactHash),
		v.Upvotes, v.Downvotes, v.CreatedAt, v.ExpiresAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgTx) LockVerification(ctx context.Context, id string) (*model.VerificationRecord, error) {
	return scanVerification(t.db.QueryRow(ctx, `
		SELECT `+verificationColumns+`
		FROM verification_logs
		WHERE id = $1::uuid
		FOR UPDATE`,
		id))
}

func (t *pgTx) GetVote(ctx context.Context, verificationID, ipHash string) (*model.VoteRecord, error) {
	var (
		v   model.VoteRecord
		dir string
	)
	err := t.db.QueryRow(ctx, `
		SELECT id, verification_id::text, source_ip_hash, vote, created_at, updated_at
		FROM vote_logs
		WHERE verification_id = $1::uuid AND source_ip_hash = $2`,
		verificationID, ipHash).Scan(&v.ID, &v.VerificationID, &v.SourceIPHash, &dir, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Direction = model.VoteDirection(dir)
	return &v, nil
}

func (t *pgTx) InsertVote(ctx context.Context, v *model.VoteRecord) error {
	err := t.db.QueryRow(ctx, `
		INSERT INTO vote_logs (verification_id, source_ip_hash, vote, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING id`,
		v.VerificationID, v.SourceIPHash, string(v.Direction), v.CreatedAt, v.UpdatedAt).Scan(&v.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgTx) UpdateVoteDirection(ctx context.Context, id int64, dir model.VoteDirection, now time.Time) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE vote_logs SET vote = $2, updated_at = $3 WHERE id = $1`,
		id, string(dir), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AdjustVoteCounts(ctx context.Context, verificationID string, dUp, dDown int) (int, int, error) {
	var up, down int
	err := t.db.QueryRow(ctx, `
		UPDATE verification_logs
		SET upvotes = upvotes + $2, downvotes = downvotes + $3
		WHERE id = $1::uuid
		RETURNING upvotes, downvotes`,
		verificationID, dUp, dDown).Scan(&up, &down)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	return up, down, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
