// Package admin implements the administrator stage control console.
//
// Every write is validated, stored, and followed by a gate reload and the
// registered listeners, so the contest view reflects the change at once.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/store"
)

var (
	// ErrInvalid is wrapped by every request validation failure.
	ErrInvalid = errors.New("invalid admin request")

	// ErrForbidden means the acting user is not the administrator.
	ErrForbidden = errors.New("not the contest administrator")
)

// Bulk actions.
const (
	ActionEnableAll  = "enable_all"
	ActionDisableAll = "disable_all"
	ActionEnable     = "enable"
	ActionDisable    = "disable"
)

// Store is the stage control persistence the console uses.
type Store interface {
	StageControls(ctx context.Context) ([]store.StageControl, error)
	StageControl(ctx context.Context, stage config.StageID) (store.StageControl, error)
	SolveCounts(ctx context.Context) (map[config.StageID]int, error)
	UpsertStageControl(ctx context.Context, sc store.StageControl) error
	SetStagesEnabled(ctx context.Context, stages []config.StageID, enabled bool, by, notes string, at time.Time) error
}

// Reloader refreshes cached availability. *gate.Gate implements it.
type Reloader interface {
	Load(ctx context.Context) error
}

// Metrics counts admin writes.
type Metrics interface {
	AdminWrite(action string)
}

// ToggleRequest enables or disables one stage.
type ToggleRequest struct {
	Stage     int    `json:"stage" validate:"required,min=1"`
	Enabled   *bool  `json:"is_enabled" validate:"required"`
	AdminUser string `json:"admin_user" validate:"required,email"`
	Notes     string `json:"notes" validate:"max=500"`
}

// NotesRequest replaces the notes of one stage.
type NotesRequest struct {
	Stage     int    `json:"stage" validate:"required,min=1"`
	AdminUser string `json:"admin_user" validate:"required,email"`
	Notes     string `json:"notes" validate:"max=500"`
}

// BulkRequest applies one action to many stages. Stages is required for
// enable and disable and ignored by the *_all actions.
type BulkRequest struct {
	Action    string `json:"action" validate:"required,oneof=enable_all disable_all enable disable"`
	Stages    []int  `json:"stages,omitempty" validate:"required_if=Action enable,required_if=Action disable,dive,min=1"`
	AdminUser string `json:"admin_user" validate:"required,email"`
}

// StageRow is one stage in the overview.
type StageRow struct {
	store.StageControl
	Solves int `json:"solves"`
}

// Overview is the admin dashboard.
type Overview struct {
	Stages      []StageRow             `json:"stages"`
	SolveCounts map[config.StageID]int `json:"solve_counts"`
}

// BulkResult reports what a bulk write touched.
type BulkResult struct {
	Action  string           `json:"action"`
	Enabled bool             `json:"is_enabled"`
	Stages  []config.StageID `json:"stages"`
}

// Console is the admin stage control surface.
type Console struct {
	cfg      *config.Contest
	store    Store
	reloader Reloader
	validate *validator.Validate
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time

	mu        sync.Mutex
	listeners []func()
}

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// WithMetrics sets the write counter.
func WithMetrics(m Metrics) Option {
	return func(c *Console) { c.metrics = m }
}

// WithNow sets the clock used for updated_at.
func WithNow(now func() time.Time) Option {
	return func(c *Console) { c.now = now }
}

// New creates a Console. reloader may be nil.
func New(cfg *config.Contest, st Store, reloader Reloader, opts ...Option) *Console {
	c := &Console{
		cfg:      cfg,
		store:    st,
		reloader: reloader,
		validate: validator.New(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "admin")
	return c
}

// OnChange registers fn to run after every successful write and gate
// reload.
func (c *Console) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Authorize checks that email is the configured administrator.
func (c *Console) Authorize(email string) error {
	if !c.cfg.IsAdmin(email) {
		return fmt.Errorf("%w: %q", ErrForbidden, email)
	}
	return nil
}

// Overview lists every stage with its control row and solve count. Stages
// without a row are listed as enabled and updated by "System".
func (c *Console) Overview(ctx context.Context) (Overview, error) {
	controls, err := c.store.StageControls(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}
	counts, err := c.store.SolveCounts(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}

	byStage := make(map[config.StageID]store.StageControl, len(controls))
	for _, sc := range controls {
		byStage[sc.Stage] = sc
	}

	ov := Overview{
		Stages:      make([]StageRow, 0, c.cfg.Total),
		SolveCounts: make(map[config.StageID]int, c.cfg.Total),
	}
	for _, s := range c.cfg.StageIDs() {
		sc, ok := byStage[s]
		if !ok {
			sc = store.StageControl{Stage: s, Enabled: true, UpdatedBy: store.DefaultUpdatedBy}
		}
		ov.Stages = append(ov.Stages, StageRow{StageControl: sc, Solves: counts[s]})
		ov.SolveCounts[s] = counts[s]
	}
	return ov, nil
}

// Toggle enables or disables one stage. Empty notes become
// "Stage N enabled via admin panel" (or disabled).
func (c *Console) Toggle(ctx context.Context, req ToggleRequest) (store.StageControl, error) {
	if err := c.check(req, req.AdminUser, req.Stage); err != nil {
		return store.StageControl{}, err
	}

	enabled := *req.Enabled
	notes := req.Notes
	if notes == "" {
		verb := "disabled"
		if enabled {
			verb = "enabled"
		}
		notes = fmt.Sprintf("Stage %d %s via admin panel", req.Stage, verb)
	}

	sc := store.StageControl{
		Stage:     config.StageID(req.Stage),
		Enabled:   enabled,
		UpdatedBy: req.AdminUser,
		Notes:     notes,
		UpdatedAt: c.now().UTC(),
	}
	if err := c.store.UpsertStageControl(ctx, sc); err != nil {
		return store.StageControl{}, fmt.Errorf("toggle stage %d: %w", req.Stage, err)
	}

	c.logger.Info("stage toggled", "stage", req.Stage, "enabled", enabled, "by", req.AdminUser)
	c.afterWrite(ctx, "toggle")
	return sc, nil
}

// UpdateNotes replaces a stage's notes and keeps its enabled flag. Empty
// notes become "Stage N notes updated".
func (c *Console) UpdateNotes(ctx context.Context, req NotesRequest) (store.StageControl, error) {
	if err := c.check(req, req.AdminUser, req.Stage); err != nil {
		return store.StageControl{}, err
	}

	stage := config.StageID(req.Stage)
	current, err := c.store.StageControl(ctx, stage)
	switch {
	case errors.Is(err, store.ErrNotFound):
		current = store.StageControl{Stage: stage, Enabled: true}
	case err != nil:
		return store.StageControl{}, fmt.Errorf("update notes stage %d: %w", req.Stage, err)
	}

	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("Stage %d notes updated", req.Stage)
	}
	current.Notes = notes
	current.UpdatedBy = req.AdminUser
	current.UpdatedAt = c.now().UTC()

	if err := c.store.UpsertStageControl(ctx, current); err != nil {
		return store.StageControl{}, fmt.Errorf("update notes stage %d: %w", req.Stage, err)
	}

	c.logger.Info("stage notes updated", "stage", req.Stage, "by", req.AdminUser)
	c.afterWrite(ctx, "notes")
	return current, nil
}

// Bulk applies enable_all, disable_all, enable or disable.
func (c *Console) Bulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	if err := c.check(req, req.AdminUser, req.Stages...); err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Action: req.Action}
	switch req.Action {
	case ActionEnableAll, ActionDisableAll:
		res.Stages = c.cfg.StageIDs()
	default:
		ids := make([]config.StageID, len(req.Stages))
		for i, s := range req.Stages {
			ids[i] = config.StageID(s)
		}
		res.Stages = config.NewStageSet(ids...).Sorted()
	}
	res.Enabled = req.Action == ActionEnableAll || req.Action == ActionEnable

	verb := "disabled"
	if res.Enabled {
		verb = "enabled"
	}
	notes := fmt.Sprintf("Bulk %s via admin panel", verb)
	if err := c.store.SetStagesEnabled(ctx, res.Stages, res.Enabled, req.AdminUser, notes, c.now().UTC()); err != nil {
		return BulkResult{}, fmt.Errorf("bulk %s: %w", req.Action, err)
	}

	c.logger.Info("bulk stage update", "action", req.Action, "stages", len(res.Stages), "by", req.AdminUser)
	c.afterWrite(ctx, req.Action)
	return res, nil
}

// check validates struct tags, the stage range and the acting user.
func (c *Console) check(req any, by string, stages ...int) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, s := range stages {
		if !c.cfg.Valid(config.StageID(s)) {
			return fmt.Errorf("%w: stage %d outside 1..%d", ErrInvalid, s, c.cfg.Total)
		}
	}
	return c.Authorize(by)
}

func (c *Console) afterWrite(ctx context.Context, action string) {
	if c.metrics != nil {
		c.metrics.AdminWrite(action)
	}
	if c.reloader != nil {
		if err := c.reloader.Load(ctx); err != nil {
			c.logger.Warn("gate reload after admin write failed", "action", action, "error", err)
		}
	}

	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// SortedCounts returns counts as (stage, solves) pairs ordered by stage.
func SortedCounts(counts map[config.StageID]int) [][2]int {
	out := make([][2]int, 0, len(counts))
	for s, n := range counts {
		out = append(out, [2]int{int(s), n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
