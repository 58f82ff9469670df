package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/fingerprint"
	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// ErrRunNotFound is returned by ReadRun for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// timeFormat has fixed width so that started_at sorts correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Run is one recorded dedup run.
type Run struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	DryRun     bool          `json:"dry_run"`
	Policy     policy.Policy `json:"policy"`
	Report     dedup.Report  `json:"report"`
}

// RunRecord is what a caller supplies to RecordRun. ID and time come from
// the ledger.
type RunRecord struct {
	InputPath  string
	OutputPath string
	DryRun     bool
	Policy     policy.Policy
	Report     dedup.Report
}

// RecordRun stores rec and its duplicate groups in one transaction and
// returns the stored run.
func (l *Ledger) RecordRun(ctx context.Context, rec RunRecord) (Run, error) {
	policyJSON, err := marshalPolicy(rec.Policy)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	run := Run{
		ID:         l.ids.Generate(),
		StartedAt:  l.clock.Now().UTC(),
		InputPath:  rec.InputPath,
		OutputPath: rec.OutputPath,
		DryRun:     rec.DryRun,
		Policy:     rec.Policy,
		Report:     rec.Report,
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, input_path, output_path, dry_run, policy, mode, keep, total, kept, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.Format(timeFormat),
		run.InputPath,
		run.OutputPath,
		run.DryRun,
		policyJSON,
		string(rec.Report.Mode),
		string(rec.Report.Keep),
		rec.Report.Total,
		rec.Report.Kept,
		rec.Report.Removed,
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	for i, g := range rec.Report.Groups {
		discarded, err := json.Marshal(g.Discarded)
		if err != nil {
			return Run{}, fmt.Errorf("record run: group %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO duplicate_groups (run_id, position, fingerprint, kept, discarded)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, i, g.Fingerprint.String(), g.Kept, string(discarded))
		if err != nil {
			return Run{}, fmt.Errorf("record run: group %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without their groups.
// limit <= 0 means no limit.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, input_path, output_path, dry_run, policy, mode, keep, total, kept, removed
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run with its duplicate groups.
func (l *Ledger) ReadRun(ctx context.Context, id string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, started_at, input_path, output_path, dry_run, policy, mode, keep, total, kept, removed
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	groups, err := l.readGroups(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Report.Groups = groups
	return run, nil
}

func (l *Ledger) readGroups(ctx context.Context, runID string) ([]dedup.ReportEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT fingerprint, kept, discarded
		FROM duplicate_groups
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []dedup.ReportEntry{}
	for rows.Next() {
		var (
			fp        string
			entry     dedup.ReportEntry
			discarded string
		)
		if err := rows.Scan(&fp, &entry.Kept, &discarded); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if entry.Fingerprint, err = fingerprint.ParseFingerprint(fp); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(discarded), &entry.Discarded); err != nil {
			return nil, fmt.Errorf("scan group: discarded: %w", err)
		}
		groups = append(groups, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		policyJSON string
		mode, keep string
	)
	err := s.Scan(
		&run.ID, &startedAt, &run.InputPath, &run.OutputPath, &run.DryRun,
		&policyJSON, &mode, &keep, &run.Report.Total, &run.Report.Kept, &run.Report.Removed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if run.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: started_at: %w", err)
	}
	if err := json.Unmarshal([]byte(policyJSON), &run.Policy); err != nil {
		return Run{}, fmt.Errorf("scan run: policy: %w", err)
	}
	run.Report.Mode = fingerprint.Mode(mode)
	run.Report.Keep = policy.Keep(keep)
	return run, nil
}

// marshalPolicy stores the policy as canonical JSON so identical policies
// compare equal as text.
func marshalPolicy(p policy.Policy) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	v, err := value.Decode(data)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	canonical, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(canonical), nil
}
