package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineRow is one rendered history entry.
type TimelineRow struct {
	At       time.Time       `json:"at"`
	ActorID  uuid.UUID       `json:"actor_id"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// TimelineFilters narrows the history query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Repository provides the timeline query.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service coordinates audit history retrieval.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of history, newest first. It requests one row
// beyond the page to learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// PGTimelineRepo implements Repository against audit_logs.
type PGTimelineRepo struct {
	pool *pgxpool.Pool
}

// NewTimelineRepo constructs the postgres timeline repository.
func NewTimelineRepo(pool *pgxpool.Pool) *PGTimelineRepo {
	return &PGTimelineRepo{pool: pool}
}

// TimelineWindow returns a slice of history ordered newest first.
func (r *PGTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To)
	}
	if strings.TrimSpace(filters.Entity) != "" {
		add("entity = $%d", strings.TrimSpace(filters.Entity))
	}
	if strings.TrimSpace(filters.Action) != "" {
		add("action = $%d", strings.TrimSpace(filters.Action))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs %s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.Meta, &row.At); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
