package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/signal"
	"github.com/Elore26/assistant/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_budgets (
	agent_name           TEXT NOT NULL,
	date                 TEXT NOT NULL,
	tokens_used          BIGINT NOT NULL DEFAULT 0,
	tool_calls           INTEGER NOT NULL DEFAULT 0,
	runs                 INTEGER NOT NULL DEFAULT 0,
	estimated_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	circuit_broken       BOOLEAN NOT NULL DEFAULT FALSE,
	broken_at            TIMESTAMPTZ,
	PRIMARY KEY (agent_name, date)
);

CREATE TABLE IF NOT EXISTS signals (
	id           UUID PRIMARY KEY,
	signal_type  TEXT NOT NULL,
	source_agent TEXT NOT NULL,
	target_agent TEXT,
	message      TEXT NOT NULL DEFAULT '',
	payload      JSONB,
	priority     INTEGER NOT NULL DEFAULT 3,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ,
	consumed     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_signals_target_created
	ON signals (target_agent, created_at DESC);

CREATE TABLE IF NOT EXISTS agent_runs (
	id                   UUID PRIMARY KEY,
	agent_name           TEXT NOT NULL,
	task                 TEXT NOT NULL DEFAULT '',
	success              BOOLEAN NOT NULL,
	output               TEXT NOT NULL DEFAULT '',
	trace                JSONB,
	total_tool_calls     INTEGER NOT NULL DEFAULT 0,
	total_loops          INTEGER NOT NULL DEFAULT 0,
	duration_ms          BIGINT NOT NULL DEFAULT 0,
	tokens_used          INTEGER NOT NULL DEFAULT 0,
	stopped_by_guardrail BOOLEAN NOT NULL DEFAULT FALSE,
	guardrail_reason     TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres implements Store on a relational database accessed through
// database/sql with the pgx stdlib driver.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPostgres connects, verifies the connection and applies the schema.
func OpenPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("postgres store ready")
	return &Postgres{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// LoadBudget implements guardrail.BudgetStore.
func (p *Postgres) LoadBudget(ctx context.Context, agent, date string) (*guardrail.Budget, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tokens_used, tool_calls, runs, estimated_cost,
		       consecutive_failures, circuit_broken, broken_at
		FROM agent_budgets WHERE agent_name = $1 AND date = $2`, agent, date)

	b := guardrail.Budget{Agent: agent, Date: date}
	var brokenAt sql.NullTime
	err := row.Scan(&b.TokensUsed, &b.ToolCalls, &b.Runs, &b.EstimatedCost,
		&b.ConsecutiveFailures, &b.CircuitBroken, &brokenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	if brokenAt.Valid {
		b.BrokenAt = brokenAt.Time
	}
	return &b, nil
}

// ApplyUsage implements guardrail.BudgetStore as a single atomic additive
// upsert so concurrent writers cannot lose increments.
func (p *Postgres) ApplyUsage(ctx context.Context, agent, date string, d guardrail.UsageDelta) (*guardrail.Budget, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO agent_budgets
			(agent_name, date, tokens_used, tool_calls, runs, estimated_cost,
			 consecutive_failures, circuit_broken, broken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (agent_name, date) DO UPDATE SET
			tokens_used          = agent_budgets.tokens_used + EXCLUDED.tokens_used,
			tool_calls           = agent_budgets.tool_calls + EXCLUDED.tool_calls,
			runs                 = agent_budgets.runs + EXCLUDED.runs,
			estimated_cost       = agent_budgets.estimated_cost + EXCLUDED.estimated_cost,
			consecutive_failures = EXCLUDED.consecutive_failures,
			circuit_broken       = EXCLUDED.circuit_broken,
			broken_at            = EXCLUDED.broken_at
		RETURNING tokens_used, tool_calls, runs, estimated_cost,
		          consecutive_failures, circuit_broken, broken_at`,
		agent, date, d.Tokens, d.ToolCalls, d.Runs, d.Cost,
		d.ConsecutiveFailures, d.CircuitBroken, nullTime(d.BrokenAt))

	b := guardrail.Budget{Agent: agent, Date: date}
	var brokenAt sql.NullTime
	if err := row.Scan(&b.TokensUsed, &b.ToolCalls, &b.Runs, &b.EstimatedCost,
		&b.ConsecutiveFailures, &b.CircuitBroken, &brokenAt); err != nil {
		return nil, fmt.Errorf("apply usage: %w", err)
	}
	if brokenAt.Valid {
		b.BrokenAt = brokenAt.Time
	}
	return &b, nil
}

// SetBreaker implements guardrail.BudgetStore.
func (p *Postgres) SetBreaker(ctx context.Context, agent, date string, broken bool, failures int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_budgets (agent_name, date, circuit_broken, consecutive_failures)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_name, date) DO UPDATE SET
			circuit_broken       = EXCLUDED.circuit_broken,
			consecutive_failures = EXCLUDED.consecutive_failures,
			broken_at            = NULL`,
		agent, date, broken, failures)
	if err != nil {
		return fmt.Errorf("set breaker: %w", err)
	}
	return nil
}

// InsertSignal implements signal.SignalStore.
func (p *Postgres) InsertSignal(ctx context.Context, s *signal.Signal) error {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO signals
			(id, signal_type, source_agent, target_agent, message, payload,
			 priority, created_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)`,
		s.ID, s.Type, s.Source, nullString(s.Target), s.Message, payload,
		s.Priority, s.CreatedAt, nullTime(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// QuerySignals implements signal.SignalStore. Results come back newest
// first.
func (p *Postgres) QuerySignals(ctx context.Context, q signal.Query) ([]signal.Signal, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, signal_type, source_agent, COALESCE(target_agent, ''),
		       message, payload, priority, created_at, expires_at, consumed
		FROM signals
		WHERE (target_agent IS NULL OR target_agent = $1)
		  AND created_at >= $2
		  AND (expires_at IS NULL OR expires_at > $3)`)
	args := []any{q.Agent, q.Since, q.Now}

	if !q.IncludeConsumed {
		sb.WriteString(" AND consumed = FALSE")
	}
	if q.Source != "" {
		args = append(args, q.Source)
		fmt.Fprintf(&sb, " AND source_agent = $%d", len(args))
	}
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&sb, " AND signal_type IN (%s)", strings.Join(placeholders, ", "))
	}
	if q.MinPriority > 0 {
		args = append(args, q.MinPriority)
		fmt.Fprintf(&sb, " AND priority <= $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []signal.Signal
	for rows.Next() {
		var s signal.Signal
		var payload []byte
		var expiresAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.Type, &s.Source, &s.Target, &s.Message,
			&payload, &s.Priority, &s.CreatedAt, &expiresAt, &s.Consumed); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if expiresAt.Valid {
			s.ExpiresAt = expiresAt.Time
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &s.Payload); err != nil {
				p.logger.Warn("discarding unreadable signal payload",
					zap.String("id", s.ID), zap.Error(err))
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkConsumed implements signal.SignalStore.
func (p *Postgres) MarkConsumed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE signals SET consumed = TRUE WHERE id IN (%s)",
			strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	return nil
}

// InsertRun implements react.RunStore.
func (p *Postgres) InsertRun(ctx context.Context, r types.AgentResult) error {
	trace, err := json.Marshal(r.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO agent_runs
			(id, agent_name, task, success, output, trace, total_tool_calls,
			 total_loops, duration_ms, tokens_used, stopped_by_guardrail,
			 guardrail_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`,
		uuid.NewString(), r.Agent, r.Task, r.Success, r.Output, trace,
		r.TotalToolCalls, r.TotalLoops, r.Duration.Milliseconds(),
		r.TokensUsed, r.StoppedByGuardrail, r.GuardrailReason)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
