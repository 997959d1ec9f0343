package opa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// LimitedAppsQuery is the rule that lists limited apps
const LimitedAppsQuery = "data.screenguard.limited_apps"

// Engine wraps OPA rego evaluation of limited-app policies.
//
// Policies define limited_apps in package screenguard as a set or array of
// objects: {"package_name": ..., "time_limit": "10m" | "time_limit_ms": n,
// "display_name": ...}. The input carries the evaluation time so limits may
// vary by day and hour.
type Engine struct {
	policyDir string
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewEngine creates a new OPA engine
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
		now:       time.Now,
	}

	query, err := e.prepare()
	if err != nil {
		return nil, err
	}
	e.query = query

	e.logger.Info().Str("policy_dir", policyDir).Msg("OPA engine initialized")

	return e, nil
}

// prepare loads every .rego file and compiles the limited apps query
func (e *Engine) prepare() (rego.PreparedEvalQuery, error) {
	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return rego.PreparedEvalQuery{}, fmt.Errorf("no policy files found in %s", e.policyDir)
	}
	sort.Strings(files)

	e.logger.Info().Int("count", len(files)).Msg("Loading policy files")

	opts := []func(*rego.Rego){rego.Query(LimitedAppsQuery)}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		// Parse up front for a per-file error message
		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")

		opts = append(opts, rego.Module(file, string(content)))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare limited apps query: %w", err)
	}
	return query, nil
}

// policyApp is the JSON shape of one limited_apps element
type policyApp struct {
	PackageName string `json:"package_name"`
	TimeLimit   string `json:"time_limit"`
	TimeLimitMS int64  `json:"time_limit_ms"`
	DisplayName string `json:"display_name"`
}

// GetAllLimitedAppsOnce evaluates the policies and returns the limited apps
// sorted by package name. An undefined rule yields an empty list.
func (e *Engine) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	startTime := time.Now()
	now := e.now()

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	input := map[string]interface{}{
		"time": map[string]interface{}{
			"day_of_week": int(now.Weekday()),
			"hour":        now.Hour(),
			"minute":      now.Minute(),
		},
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("limited apps query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Limited apps query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return []storage.LimitedApp{}, nil
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal limited apps: %w", err)
	}

	var raw []policyApp
	if err := json.Unmarshal(resultBytes, &raw); err != nil {
		return nil, fmt.Errorf("limited_apps must be a collection of objects: %w", err)
	}

	apps := make([]storage.LimitedApp, 0, len(raw))
	for _, r := range raw {
		limit := r.TimeLimitMS
		if r.TimeLimit != "" {
			d, err := time.ParseDuration(r.TimeLimit)
			if err != nil {
				return nil, fmt.Errorf("invalid time_limit %q for %s: %w", r.TimeLimit, r.PackageName, err)
			}
			limit = d.Milliseconds()
		}
		apps = append(apps, storage.LimitedApp{
			PackageName:     r.PackageName,
			TimeLimitMillis: limit,
			DisplayName:     r.DisplayName,
			UpdatedAt:       now,
		})
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageName < apps[j].PackageName })

	return apps, nil
}

// Reload reloads all policies from disk. On failure the previous query
// stays active.
func (e *Engine) Reload() error {
	e.logger.Info().Msg("Reloading OPA policies")

	query, err := e.prepare()
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}

	e.mu.Lock()
	e.query = query
	e.mu.Unlock()

	e.logger.Info().Msg("OPA policies reloaded successfully")

	return nil
}
