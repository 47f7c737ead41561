package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"callpulse/internal/calls"
	"callpulse/internal/campaign"
	"callpulse/pkg/utils"
)

// Postgres implements Store over database/sql (pgx stdlib driver).
//
// Schema lives in scripts/schema.sql. String-list columns (service_tags,
// key_issues) are JSONB; retry policy is embedded as JSONB on campaigns.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

/* ===================== CUSTOMERS ===================== */

const customerColumns = `id, name, phone, reason, service_tags, priority, eligible, created_at`

func (p *Postgres) InsertCustomer(ctx context.Context, c campaign.Customer) error {
	const q = `
INSERT INTO customers (id, name, phone, reason, service_tags, priority, eligible, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	tags, err := toJSON(c.ServiceTags)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, q, c.ID, c.Name, c.Phone, c.Reason, tags, c.Priority, c.Eligible, c.CreatedAt)
	return err
}

func (p *Postgres) InsertCustomers(ctx context.Context, cs []campaign.Customer) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO customers (id, name, phone, reason, service_tags, priority, eligible, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
		for _, c := range cs {
			tags, err := toJSON(c.ServiceTags)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, q, c.ID, c.Name, c.Phone, c.Reason, tags, c.Priority, c.Eligible, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) GetCustomerByID(ctx context.Context, id string) (campaign.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(p.db.QueryRowContext(ctx, q, id))
}

func (p *Postgres) GetCustomersByServiceTags(ctx context.Context, tags []string) ([]campaign.Customer, error) {
	// JSONB containment per tag; a customer matches if it carries any of them.
	wanted, err := toJSON(tags)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + customerColumns + `
FROM customers
WHERE service_tags ?| ARRAY(SELECT jsonb_array_elements_text($1::jsonb))
ORDER BY id
`
	rows, err := p.db.QueryContext(ctx, q, wanted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]campaign.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(r rowScanner) (campaign.Customer, error) {
	var c campaign.Customer
	var tags []byte
	err := r.Scan(&c.ID, &c.Name, &c.Phone, &c.Reason, &tags, &c.Priority, &c.Eligible, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.Customer{}, ErrNotFound
		}
		return campaign.Customer{}, err
	}
	if err := fromJSON(tags, &c.ServiceTags); err != nil {
		return campaign.Customer{}, err
	}
	return c, nil
}

/* ===================== CAMPAIGNS ===================== */

const campaignColumns = `id, name, status, target_service_tags, customer_count, max_concurrent_calls,
       retry_policy, script_template, started_at, completed_at, created_at, updated_at`

func (p *Postgres) InsertCampaign(ctx context.Context, c campaign.Campaign) error {
	return insertCampaignExec(ctx, p.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCampaignExec(ctx context.Context, ex execer, c campaign.Campaign) error {
	const q = `
INSERT INTO campaigns (
  id, name, status, target_service_tags, customer_count, max_concurrent_calls,
  retry_policy, script_template, started_at, completed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	tags, err := toJSON(c.TargetServiceTags)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(c.RetryPolicy)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, q,
		c.ID, c.Name, c.Status, tags, c.CustomerCount, c.MaxConcurrentCalls,
		policy, c.ScriptTemplate, c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *Postgres) GetCampaignByID(ctx context.Context, id string) (campaign.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var c campaign.Campaign
	var tags, policy []byte
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.Status, &tags, &c.CustomerCount, &c.MaxConcurrentCalls,
		&policy, &c.ScriptTemplate, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.Campaign{}, ErrNotFound
		}
		return campaign.Campaign{}, err
	}
	if err := fromJSON(tags, &c.TargetServiceTags); err != nil {
		return campaign.Campaign{}, err
	}
	if err := json.Unmarshal(policy, &c.RetryPolicy); err != nil {
		return campaign.Campaign{}, err
	}
	return c, nil
}

func (p *Postgres) UpdateCampaignStatus(ctx context.Context, id string, status campaign.Status, now time.Time) error {
	const q = `
UPDATE campaigns
SET status = $2,
    updated_at = $3,
    completed_at = CASE
      WHEN $2 IN ('completed','cancelled','error') AND completed_at IS NULL THEN $3
      ELSE completed_at
    END
WHERE id = $1
`
	res, err := p.db.ExecContext(ctx, q, id, status, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateCampaignWithCalls(ctx context.Context, c campaign.Campaign, cs []calls.Call) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertCampaignExec(ctx, tx, c); err != nil {
			return err
		}
		for _, call := range cs {
			if err := insertCallExec(ctx, tx, call); err != nil {
				return err
			}
		}
		return nil
	})
}

/* ===================== CALLS ===================== */

const callColumns = `id, campaign_id, customer_id, customer_name, phone, status, provider_call_id,
       scheduled_at, started_at, ended_at, duration_seconds, transcript, summary, sentiment,
       key_issues, recording_url, error_message, failure_reason, retry_count, max_retries, service_tags,
       created_at, updated_at`

func insertCallExec(ctx context.Context, ex execer, c calls.Call) error {
	const q = `
INSERT INTO calls (
  id, campaign_id, customer_id, customer_name, phone, status, provider_call_id,
  scheduled_at, started_at, ended_at, duration_seconds, transcript, summary, sentiment,
  key_issues, recording_url, error_message, failure_reason, retry_count, max_retries, service_tags,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
`
	issues, err := toJSON(c.KeyIssues)
	if err != nil {
		return err
	}
	tags, err := toJSON(c.ServiceTags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, q,
		c.ID, c.CampaignID, c.CustomerID, c.CustomerName, c.Phone, c.Status, c.ProviderCallID,
		c.ScheduledAt, c.StartedAt, c.EndedAt, c.DurationSeconds, c.Transcript, c.Summary, c.Sentiment,
		issues, c.RecordingURL, c.ErrorMessage, c.FailureReason, c.RetryCount, c.MaxRetries, tags,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *Postgres) InsertCalls(ctx context.Context, cs []calls.Call) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, c := range cs {
			if err := insertCallExec(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) GetCallByID(ctx context.Context, id string) (calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(p.db.QueryRowContext(ctx, q, id))
}

func (p *Postgres) GetCallsByStatus(ctx context.Context, status calls.CallStatus, limit int) ([]calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE status = $1 ORDER BY created_at`
	args := []any{status}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return p.queryCalls(ctx, q, args...)
}

func (p *Postgres) GetCallsByCampaign(ctx context.Context, campaignID string) ([]calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE campaign_id = $1 ORDER BY created_at`
	return p.queryCalls(ctx, q, campaignID)
}

func (p *Postgres) GetCallsByCampaignAndStatus(ctx context.Context, campaignID string, status calls.CallStatus, limit int) ([]calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE campaign_id = $1 AND status = $2 ORDER BY created_at`
	args := []any{campaignID, status}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	return p.queryCalls(ctx, q, args...)
}

func (p *Postgres) CountCallsByStatuses(ctx context.Context, campaignID string, statuses []calls.CallStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]string, 0, len(statuses))
	args := []any{campaignID}
	for i, s := range statuses {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, s)
	}
	q := `SELECT COUNT(*) FROM calls WHERE campaign_id = $1 AND status IN (` + strings.Join(placeholders, ",") + `)`
	var n int
	if err := p.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) UpdateCallStatus(ctx context.Context, id string, status calls.CallStatus, fields CallFields) error {
	set := []string{"status = $2"}
	args := []any{id, status}
	next := 3

	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, next))
		args = append(args, v)
		next++
	}

	if fields.ProviderCallID != nil {
		add("provider_call_id", *fields.ProviderCallID)
	}
	if fields.StartedAt != nil {
		add("started_at", *fields.StartedAt)
	}
	if fields.EndedAt != nil {
		add("ended_at", *fields.EndedAt)
	}
	if fields.DurationSeconds != nil {
		add("duration_seconds", *fields.DurationSeconds)
	}
	if fields.Transcript != nil {
		add("transcript", *fields.Transcript)
	}
	if fields.Summary != nil {
		add("summary", *fields.Summary)
	}
	if fields.Sentiment != nil {
		add("sentiment", *fields.Sentiment)
	}
	if fields.KeyIssues != nil {
		issues, err := toJSON(*fields.KeyIssues)
		if err != nil {
			return err
		}
		add("key_issues", issues)
	}
	if fields.RecordingURL != nil {
		add("recording_url", *fields.RecordingURL)
	}
	if fields.ErrorMessage != nil {
		add("error_message", *fields.ErrorMessage)
	}
	if fields.FailureReason != nil {
		add("failure_reason", *fields.FailureReason)
	}
	if fields.RetryCount != nil {
		add("retry_count", *fields.RetryCount)
	}
	if !fields.UpdatedAt.IsZero() {
		add("updated_at", fields.UpdatedAt)
	}

	q := `UPDATE calls SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ClaimPendingCall(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	// The conditional WHERE is the admission guard: of N concurrent claimers
	// exactly one sees status = 'pending'.
	const q = `
UPDATE calls
SET status = 'calling', started_at = $2, updated_at = $2
WHERE id = $1 AND status = 'pending'
`
	res, err := p.db.ExecContext(ctx, q, id, startedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) GetCallByProviderID(ctx context.Context, providerCallID string, among []calls.CallStatus) (calls.Call, error) {
	if providerCallID == "" || len(among) == 0 {
		return calls.Call{}, ErrNotFound
	}
	placeholders := make([]string, 0, len(among))
	args := []any{providerCallID}
	for i, s := range among {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, s)
	}
	q := `SELECT ` + callColumns + ` FROM calls
WHERE provider_call_id = $1 AND status IN (` + strings.Join(placeholders, ",") + `)
LIMIT 1`
	return scanCall(p.db.QueryRowContext(ctx, q, args...))
}

func (p *Postgres) CampaignCallCounts(ctx context.Context, campaignID string) (StatusCounts, error) {
	if _, err := p.GetCampaignByID(ctx, campaignID); err != nil {
		return nil, err
	}
	const q = `SELECT status, COUNT(*) FROM calls WHERE campaign_id = $1 GROUP BY status`
	rows, err := p.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := StatusCounts{}
	for rows.Next() {
		var s calls.CallStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

func (p *Postgres) ListCalls(ctx context.Context, f ListCallsFilter) ([]calls.Call, int, error) {
	f = f.normalized()

	where := []string{"1=1"}
	args := []any{}
	next := 1
	if f.CampaignID != "" {
		where = append(where, fmt.Sprintf("campaign_id = $%d", next))
		args = append(args, f.CampaignID)
		next++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", next))
		args = append(args, f.Status)
		next++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	// f.SortBy is whitelisted by normalized(); safe to splice.
	q := fmt.Sprintf(`SELECT %s FROM calls WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		callColumns, cond, f.SortBy, dir, next, next+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := p.queryCalls(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (p *Postgres) queryCalls(ctx context.Context, q string, args ...any) ([]calls.Call, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCall(r rowScanner) (calls.Call, error) {
	var c calls.Call
	var issues, tags []byte
	err := r.Scan(
		&c.ID, &c.CampaignID, &c.CustomerID, &c.CustomerName, &c.Phone, &c.Status, &c.ProviderCallID,
		&c.ScheduledAt, &c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.Transcript, &c.Summary, &c.Sentiment,
		&issues, &c.RecordingURL, &c.ErrorMessage, &c.FailureReason, &c.RetryCount, &c.MaxRetries, &tags,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Call{}, ErrNotFound
		}
		return calls.Call{}, err
	}
	if err := fromJSON(issues, &c.KeyIssues); err != nil {
		return calls.Call{}, err
	}
	if err := fromJSON(tags, &c.ServiceTags); err != nil {
		return calls.Call{}, err
	}
	return c, nil
}

func toJSON(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

func fromJSON(b []byte, dst *[]string) error {
	if len(b) == 0 {
		*dst = nil
		return nil
	}
	return json.Unmarshal(b, dst)
}
