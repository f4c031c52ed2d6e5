package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID               uuid.UUID
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Company          string
	Title            string
	Source           string
	Status           string
	Score            int
	Tier             string
	EmailsOpened     int
	EmailsClicked    int
	HasCallScheduled bool
	Escalated        bool
	Enrichment       map[string]any
	VectorID         *string
	LastContactedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName returns the lead's display name.
func (l Lead) FullName() string {
	if l.LastName == "" {
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

type CreateLeadParams struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	Title     string
	Source    string
}

const leadColumns = `id, first_name, last_name, email, phone, company, title, source,
	status, score, tier, emails_opened, emails_clicked, has_call_scheduled,
	escalated, enrichment, vector_id, last_contacted_at, created_at, updated_at`

func (r *Repository) scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	var enrichment []byte
	err := row.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone,
		&lead.Company, &lead.Title, &lead.Source, &lead.Status, &lead.Score,
		&lead.Tier, &lead.EmailsOpened, &lead.EmailsClicked,
		&lead.HasCallScheduled, &lead.Escalated, &enrichment, &lead.VectorID,
		&lead.LastContactedAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	if len(enrichment) > 0 {
		_ = json.Unmarshal(enrichment, &lead.Enrichment)
	}
	return lead, nil
}

func (r *Repository) Create(ctx context.Context, p CreateLeadParams) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (first_name, last_name, email, phone, company, title, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+leadColumns,
		p.FirstName, p.LastName, p.Email, p.Phone, p.Company, p.Title, p.Source,
	)
	return r.scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return r.scanLead(row)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE lower(email) = lower($1)`, email)
	return r.scanLead(row)
}

// UpdateStatus sets the lifecycle status. Transition validity is checked
// by the caller (domain.CanTransition); the repository only persists.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, status)
	return r.scanLead(row)
}

func (r *Repository) UpdateScore(ctx context.Context, id uuid.UUID, score int, tier string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads SET score = $2, tier = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, score, tier)
	return r.scanLead(row)
}

func (r *Repository) SetEnrichment(ctx context.Context, id uuid.UUID, enrichment map[string]any) error {
	payload, err := json.Marshal(enrichment)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET enrichment = $2, updated_at = now() WHERE id = $1`,
		id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetVectorID(ctx context.Context, id uuid.UUID, vectorID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET vector_id = $2, updated_at = now() WHERE id = $1`,
		id, vectorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetCallScheduled(ctx context.Context, id uuid.UUID, scheduled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET has_call_scheduled = $2, updated_at = now() WHERE id = $1`,
		id, scheduled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetEscalated(ctx context.Context, id uuid.UUID, escalated bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET escalated = $2, updated_at = now() WHERE id = $1`,
		id, escalated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEngagement increments the lead's open/click counters and stamps
// the last contact time.
func (r *Repository) RecordEngagement(ctx context.Context, id uuid.UUID, opened, clicked int) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET emails_opened = emails_opened + $2,
		    emails_clicked = emails_clicked + $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, opened, clicked)
	return r.scanLead(row)
}

func (r *Repository) TouchLastContacted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET last_contacted_at = $2, updated_at = now() WHERE id = $1`,
		id, at)
	return err
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]Lead, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := r.scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}
