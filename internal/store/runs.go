package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Log levels for run log entries.
const (
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// Entity link columns on agent_runs.
const (
	LinkTicket   = "ticket_id"
	LinkCampaign = "campaign_id"
	LinkLead     = "lead_id"
)

// AgentRun is one persisted agent invocation.
type AgentRun struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	AgentType      string         `json:"agentType"`
	UserID         string         `json:"userId,omitempty"`
	Status         string         `json:"status"`
	Input          map[string]any `json:"input"`
	Output         map[string]any `json:"output,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	TicketID       string         `json:"ticketId,omitempty"`
	CampaignID     string         `json:"campaignId,omitempty"`
	LeadID         string         `json:"leadId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	User           *UserSummary   `json:"user,omitempty"`
	Logs           []AgentLog     `json:"logs,omitempty"`
}

// AgentLog is a log line attached to a run.
type AgentLog struct {
	ID         string         `json:"id"`
	AgentRunID string         `json:"agentRunId"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// UserSummary is the subset of a user embedded in run listings.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewRun is the data needed to open a run record.
type NewRun struct {
	OrganizationID string
	AgentType      string
	UserID         string
	Input          map[string]any
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	OrganizationID string
	AgentType      string
	Limit          int
}

// CreateRun inserts a run in the running state.
func (s *Store) CreateRun(ctx context.Context, nr NewRun) (*AgentRun, error) {
	ctx, span := tracer.Start(ctx, "store.create_run",
		trace.WithAttributes(
			attribute.String("organization_id", nr.OrganizationID),
			attribute.String("agent_type", nr.AgentType),
		))
	defer span.End()

	input := nr.Input
	if input == nil {
		input = map[string]any{}
	}
	inputJSON, err := marshalJSON(input)
	if err != nil {
		return nil, fmt.Errorf("marshaling run input: %w", err)
	}

	now := s.clock()
	run := &AgentRun{
		ID:             newID(),
		OrganizationID: nr.OrganizationID,
		AgentType:      nr.AgentType,
		UserID:         nr.UserID,
		Status:         RunRunning,
		Input:          input,
		StartedAt:      now,
		CreatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, organization_id, agent_type, user_id, status, input_json, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OrganizationID, run.AgentType, nullString(run.UserID), run.Status, inputJSON, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", run.ID))
	return run, nil
}

// CompleteRun marks a run completed with its output.
func (s *Store) CompleteRun(ctx context.Context, id string, output map[string]any, reasoning string, metadata map[string]any) error {
	ctx, span := tracer.Start(ctx, "store.complete_run",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer span.End()

	outJSON, err := nullableJSON(output)
	if err != nil {
		return fmt.Errorf("marshaling run output: %w", err)
	}
	metaJSON, err := nullableJSON(metadata)
	if err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET status = ?, output_json = ?, reasoning = ?, metadata_json = ?, completed_at = ? WHERE id = ?`,
		RunCompleted, outJSON, nullString(reasoning), metaJSON, s.clock(), id,
	)
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}
	return requireAffected(res, "run", id)
}

// FailRun marks a run failed with output {"error": message} and appends an
// error log entry carrying data, in one transaction.
func (s *Store) FailRun(ctx context.Context, id, message string, data map[string]any) error {
	ctx, span := tracer.Start(ctx, "store.fail_run",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer span.End()

	outJSON, err := marshalJSON(map[string]any{"error": message})
	if err != nil {
		return fmt.Errorf("marshaling failure output: %w", err)
	}
	dataJSON, err := nullableJSON(data)
	if err != nil {
		return fmt.Errorf("marshaling log data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.clock()
	res, err := tx.ExecContext(ctx,
		`UPDATE agent_runs SET status = ?, output_json = ?, completed_at = ? WHERE id = ?`,
		RunFailed, outJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("failing run: %w", err)
	}
	if err := requireAffected(res, "run", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_logs (id, agent_run_id, level, message, data_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), id, LogError, message, dataJSON, now,
	); err != nil {
		return fmt.Errorf("appending failure log: %w", err)
	}
	return tx.Commit()
}

// AppendLog adds a log entry to a run.
func (s *Store) AppendLog(ctx context.Context, runID, level, message string, data map[string]any) error {
	ctx, span := tracer.Start(ctx, "store.append_log",
		trace.WithAttributes(attribute.String("run.id", runID), attribute.String("level", level)))
	defer span.End()

	dataJSON, err := nullableJSON(data)
	if err != nil {
		return fmt.Errorf("marshaling log data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_logs (id, agent_run_id, level, message, data_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), runID, level, message, dataJSON, s.clock(),
	)
	if err != nil {
		return fmt.Errorf("appending log: %w", err)
	}
	return nil
}

// LinkEntity sets one of the entity link columns (LinkTicket, LinkCampaign,
// LinkLead) on a run.
func (s *Store) LinkEntity(ctx context.Context, runID, column, entityID string) error {
	ctx, span := tracer.Start(ctx, "store.link_entity",
		trace.WithAttributes(attribute.String("run.id", runID), attribute.String("column", column)))
	defer span.End()

	var query string
	switch column {
	case LinkTicket:
		query = `UPDATE agent_runs SET ticket_id = ? WHERE id = ?`
	case LinkCampaign:
		query = `UPDATE agent_runs SET campaign_id = ? WHERE id = ?`
	case LinkLead:
		query = `UPDATE agent_runs SET lead_id = ? WHERE id = ?`
	default:
		return fmt.Errorf("unsupported link column %q", column)
	}
	res, err := s.db.ExecContext(ctx, query, entityID, runID)
	if err != nil {
		return fmt.Errorf("linking entity: %w", err)
	}
	return requireAffected(res, "run", runID)
}

const runColumns = `r.id, r.organization_id, r.agent_type, r.user_id, r.status, r.input_json, r.output_json,
	r.reasoning, r.metadata_json, r.started_at, r.completed_at, r.ticket_id, r.campaign_id, r.lead_id, r.created_at,
	u.id, u.name, u.email`

// ListRuns returns runs for an organization, newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]AgentRun, error) {
	ctx, span := tracer.Start(ctx, "store.list_runs",
		trace.WithAttributes(
			attribute.String("organization_id", f.OrganizationID),
			attribute.String("agent_type", f.AgentType),
		))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM agent_runs r LEFT JOIN users u ON u.id = r.user_id WHERE r.organization_id = ?`
	args := []interface{}{f.OrganizationID}
	if f.AgentType != "" {
		query += ` AND r.agent_type = ?`
		args = append(args, f.AgentType)
	}
	query += ` ORDER BY r.created_at DESC, r.rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []AgentRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountRunsSince counts the organization's runs created at or after since.
func (s *Store) CountRunsSince(ctx context.Context, organizationID string, since time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "store.count_runs_since")
	defer span.End()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_runs WHERE organization_id = ? AND created_at >= ?`,
		organizationID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// GetRun returns one run with its logs (oldest first). ErrNotFound when the
// run does not exist for the organization.
func (s *Store) GetRun(ctx context.Context, organizationID, id string) (*AgentRun, error) {
	ctx, span := tracer.Start(ctx, "store.get_run",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM agent_runs r LEFT JOIN users u ON u.id = r.user_id WHERE r.id = ? AND r.organization_id = ?`,
		id, organizationID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	logs, err := s.runLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Logs = logs
	return run, nil
}

func (s *Store) runLogs(ctx context.Context, runID string) ([]AgentLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_run_id, level, message, data_json, created_at FROM agent_logs
		 WHERE agent_run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run logs: %w", err)
	}
	defer rows.Close()

	logs := []AgentLog{}
	for rows.Next() {
		var l AgentLog
		var data sql.NullString
		if err := rows.Scan(&l.ID, &l.AgentRunID, &l.Level, &l.Message, &data, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run log: %w", err)
		}
		if l.Data, err = decodeMap(data); err != nil {
			return nil, fmt.Errorf("decoding run log data: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*AgentRun, error) {
	var (
		r                                 AgentRun
		userID, reasoning                 sql.NullString
		inputJSON                         string
		outputJSON, metaJSON              sql.NullString
		completedAt                       sql.NullTime
		ticketID, campaignID, leadID      sql.NullString
		joinedID, joinedName, joinedEmail sql.NullString
	)
	err := sc.Scan(&r.ID, &r.OrganizationID, &r.AgentType, &userID, &r.Status, &inputJSON, &outputJSON,
		&reasoning, &metaJSON, &r.StartedAt, &completedAt, &ticketID, &campaignID, &leadID, &r.CreatedAt,
		&joinedID, &joinedName, &joinedEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	r.UserID = userID.String
	r.Reasoning = reasoning.String
	r.CompletedAt = timePtr(completedAt)
	r.TicketID = ticketID.String
	r.CampaignID = campaignID.String
	r.LeadID = leadID.String

	if r.Input, err = decodeMap(sql.NullString{String: inputJSON, Valid: true}); err != nil {
		return nil, fmt.Errorf("decoding run input: %w", err)
	}
	if r.Output, err = decodeMap(outputJSON); err != nil {
		return nil, fmt.Errorf("decoding run output: %w", err)
	}
	if r.Metadata, err = decodeMap(metaJSON); err != nil {
		return nil, fmt.Errorf("decoding run metadata: %w", err)
	}
	if joinedID.Valid {
		r.User = &UserSummary{ID: joinedID.String, Name: joinedName.String, Email: joinedEmail.String}
	}
	return &r, nil
}

func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
