package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store implementation.
//
// Designed for:
//   - Development and testing with zero external setup
//   - Single-process deployments of cmd/server
//
// Uses WAL mode. The pool is capped at one open connection, so calls from
// concurrent Executions (each its own goroutine, per spec §5) run one at a
// time.
//
// Schema:
//   - workflows, nodes, edges: read-only from the engine's perspective
//   - executions, node_executions: written per spec §4.4-§4.5
//   - generations: append-only side records (spec §3)
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path.
// Use ":memory:" for an ephemeral in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT,
			config TEXT,
			has_breakpoint INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			source_node_id TEXT NOT NULL,
			target_node_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			total_cost REAL NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS node_executions (
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			input_data TEXT,
			output_data TEXT,
			error_message TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			PRIMARY KEY (execution_id, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			parameters TEXT,
			image_urls TEXT,
			aspect_ratio TEXT,
			cost REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) FetchWorkflow(ctx context.Context, workflowID, requestingUserID string) (Workflow, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM workflows WHERE id = ?`, workflowID).Scan(&userID)
	if err == sql.ErrNoRows || (err == nil && userID != requestingUserID) {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("fetch workflow: %w", err)
	}

	nodes, err := s.fetchNodes(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	edges, err := s.fetchEdges(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	return Workflow{ID: workflowID, UserID: userID, Nodes: nodes, Edges: edges}, nil
}

func (s *SQLiteStore) fetchNodes(ctx context.Context, workflowID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, type, name, config, has_breakpoint FROM nodes WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		var configJSON sql.NullString
		var breakpoint int
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Type, &n.Name, &configJSON, &breakpoint); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.HasBreakpoint = breakpoint != 0
		if configJSON.Valid && configJSON.String != "" {
			if err := json.Unmarshal([]byte(configJSON.String), &n.Config); err != nil {
				return nil, fmt.Errorf("unmarshal node config: %w", err)
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *SQLiteStore) fetchEdges(ctx context.Context, workflowID string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, source_node_id, target_node_id FROM edges WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, workflowID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, status, started_at) VALUES (?, ?, ?, ?)`,
		id, workflowID, ExecutionRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) CreateNodeExecutions(ctx context.Context, executionID string, orderedNodes []Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range orderedNodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_executions (execution_id, node_id, status) VALUES (?, ?, ?)`,
			executionID, n.ID, NodePending); err != nil {
			return fmt.Errorf("create node execution %s: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, executionID string, upd ExecutionUpdate) error {
	current, err := s.FetchExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() && current.Status != upd.Status {
		return nil
	}

	query := `UPDATE executions SET status = ?`
	args := []any{upd.Status}
	if upd.ErrorMessage != nil {
		query += `, error_message = ?`
		args = append(args, *upd.ErrorMessage)
	}
	if upd.TotalCost != nil {
		query += `, total_cost = ?`
		args = append(args, *upd.TotalCost)
	}
	if upd.Status.Terminal() {
		query += `, finished_at = ?`
		args = append(args, time.Now().UTC())
	}
	query += ` WHERE id = ?`
	args = append(args, executionID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateNodeExecution(ctx context.Context, executionID, nodeID string, upd NodeExecutionUpdate) error {
	query := `UPDATE node_executions SET status = ?`
	args := []any{upd.Status}

	if upd.InputData != nil {
		b, err := json.Marshal(upd.InputData)
		if err != nil {
			return fmt.Errorf("marshal input_data: %w", err)
		}
		query += `, input_data = ?`
		args = append(args, string(b))
	}
	if upd.OutputData != nil {
		b, err := json.Marshal(upd.OutputData)
		if err != nil {
			return fmt.Errorf("marshal output_data: %w", err)
		}
		query += `, output_data = ?`
		args = append(args, string(b))
	}
	if upd.ErrorMessage != nil {
		query += `, error_message = ?`
		args = append(args, *upd.ErrorMessage)
	}
	if upd.Status == NodeRunning {
		query += `, started_at = ?`
		args = append(args, time.Now().UTC())
	}
	if upd.Status == NodeCompleted || upd.Status == NodeFailed {
		query += `, finished_at = ?`
		args = append(args, time.Now().UTC())
	}
	query += ` WHERE execution_id = ? AND node_id = ?`
	args = append(args, executionID, nodeID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update node execution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: node execution %s/%s", ErrNotFound, executionID, nodeID)
	}
	return nil
}

func (s *SQLiteStore) FetchExecutionForUser(ctx context.Context, executionID, userID string) (Execution, error) {
	exec, err := s.FetchExecution(ctx, executionID)
	if err != nil {
		return Execution{}, err
	}
	var ownerID string
	err = s.db.QueryRowContext(ctx, `SELECT user_id FROM workflows WHERE id = ?`, exec.WorkflowID).Scan(&ownerID)
	if err == sql.ErrNoRows || (err == nil && ownerID != userID) {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, fmt.Errorf("fetch workflow owner: %w", err)
	}
	return exec, nil
}

func (s *SQLiteStore) FetchExecution(ctx context.Context, executionID string) (Execution, error) {
	var e Execution
	var errMsg sql.NullString
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, total_cost, error_message, started_at, finished_at FROM executions WHERE id = ?`,
		executionID,
	).Scan(&e.ID, &e.WorkflowID, &e.Status, &e.TotalCost, &errMsg, &e.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, fmt.Errorf("fetch execution: %w", err)
	}
	e.ErrorMessage = errMsg.String
	if finishedAt.Valid {
		e.FinishedAt = &finishedAt.Time
	}
	return e, nil
}

func (s *SQLiteStore) FetchNodeExecutions(ctx context.Context, executionID string) ([]NodeExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, status, input_data, output_data, error_message, started_at, finished_at
		 FROM node_executions WHERE execution_id = ? ORDER BY rowid`, executionID)
	if err != nil {
		return nil, fmt.Errorf("fetch node executions: %w", err)
	}
	defer rows.Close()

	var out []NodeExecution
	for rows.Next() {
		var ne NodeExecution
		var inputJSON, outputJSON, errMsg sql.NullString
		var startedAt, finishedAt sql.NullTime
		if err := rows.Scan(&ne.NodeID, &ne.Status, &inputJSON, &outputJSON, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		ne.ExecutionID = executionID
		ne.ErrorMessage = errMsg.String
		if inputJSON.Valid && inputJSON.String != "" {
			if err := json.Unmarshal([]byte(inputJSON.String), &ne.InputData); err != nil {
				return nil, fmt.Errorf("unmarshal input_data: %w", err)
			}
		}
		if outputJSON.Valid && outputJSON.String != "" {
			if err := json.Unmarshal([]byte(outputJSON.String), &ne.OutputData); err != nil {
				return nil, fmt.Errorf("unmarshal output_data: %w", err)
			}
		}
		if startedAt.Valid {
			ne.StartedAt = &startedAt.Time
		}
		if finishedAt.Valid {
			ne.FinishedAt = &finishedAt.Time
		}
		out = append(out, ne)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateGeneration(ctx context.Context, g Generation) error {
	params, err := json.Marshal(g.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	urls, err := json.Marshal(g.ImageURLs)
	if err != nil {
		return fmt.Errorf("marshal image_urls: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generations (id, execution_id, model_id, prompt, parameters, image_urls, aspect_ratio, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), g.ExecutionID, g.ModelID, g.Prompt, string(params), string(urls), g.AspectRatio, g.Cost, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	return nil
}
