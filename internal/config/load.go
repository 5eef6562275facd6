package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

//go:embed default.cue
var defaultCUE []byte

// rawContest mirrors the CUE shape. Decoding goes through the json tags.
type rawContest struct {
	Total   int `json:"total"`
	TwoStep struct {
		From int `json:"from"`
		To   int `json:"to"`
	} `json:"two_step"`
	AdminEmail         string     `json:"admin_email"`
	LeaderboardDelayMS int        `json:"leaderboard_delay_ms"`
	Stages             []rawStage `json:"stages"`
}

type rawStage struct {
	ID         int               `json:"id"`
	Title      string            `json:"title"`
	Video      string            `json:"video"`
	Prize      string            `json:"prize"`
	SecondClue string            `json:"second_clue"`
	Answers    map[string]string `json:"answers"`
}

// Default returns the built-in reference contest: 16 stages, two-step
// stages 5 through 15, local fallback answers for stages 1 through 4.
func Default() (*Contest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(defaultCUE, cue.Filename("default.cue"))
	return build(ctx, v)
}

// MustDefault is Default for tests and static initialization.
func MustDefault() *Contest {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid: %v", err))
	}
	return c
}

// Load reads a contest definition from path. A directory is loaded as a CUE
// package; a regular file is compiled on its own. The value must declare a
// top-level `contest` field matching #Contest.
func Load(path string) (*Contest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{Field: "path", Message: fmt.Sprintf("stat %s: %v", path, err)}
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &ConfigError{Field: "path", Message: "no CUE instances loaded"}
		}
		if instances[0].Err != nil {
			return nil, formatCUEError(instances[0].Err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Field: "path", Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	return build(ctx, v)
}

// Parse compiles an in-memory CUE document. Used by tests and the harness.
func Parse(src []byte) (*Contest, error) {
	ctx := cuecontext.New()
	return build(ctx, ctx.CompileBytes(src, cue.Filename("contest.cue")))
}

func build(ctx *cue.Context, v cue.Value) (*Contest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	contestVal := v.LookupPath(cue.ParsePath("contest"))
	if !contestVal.Exists() {
		return nil, &ConfigError{Field: "contest", Message: "missing top-level contest field"}
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Contest")).Unify(contestVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawContest
	if err := unified.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	return fromRaw(raw, contestVal.Pos())
}

// fromRaw applies the cross-field rules CUE cannot express cheaply.
func fromRaw(raw rawContest, pos token.Pos) (*Contest, error) {
	c := &Contest{
		Total:            raw.Total,
		TwoStepFrom:      StageID(raw.TwoStep.From),
		TwoStepTo:        StageID(raw.TwoStep.To),
		AdminEmail:       raw.AdminEmail,
		LeaderboardDelay: time.Duration(raw.LeaderboardDelayMS) * time.Millisecond,
		stages:           make(map[StageID]Stage, len(raw.Stages)),
	}

	if c.TwoStepFrom != 0 || c.TwoStepTo != 0 {
		if c.TwoStepFrom < 1 || c.TwoStepFrom > c.TwoStepTo {
			return nil, &ConfigError{
				Field:   "two_step",
				Message: fmt.Sprintf("invalid range %d..%d", c.TwoStepFrom, c.TwoStepTo),
				Pos:     pos,
			}
		}
		if int(c.TwoStepTo) > c.Total {
			return nil, &ConfigError{
				Field:   "two_step.to",
				Message: fmt.Sprintf("%d exceeds total %d", c.TwoStepTo, c.Total),
				Pos:     pos,
			}
		}
	}

	for _, rs := range raw.Stages {
		id := StageID(rs.ID)
		if !c.Valid(id) {
			return nil, &ConfigError{
				Field:   "stages.id",
				Message: fmt.Sprintf("stage %d outside 1..%d", rs.ID, c.Total),
				Pos:     pos,
			}
		}
		if _, dup := c.stages[id]; dup {
			return nil, &ConfigError{
				Field:   "stages.id",
				Message: fmt.Sprintf("stage %d declared twice", rs.ID),
				Pos:     pos,
			}
		}

		st := Stage{
			ID:         id,
			Title:      rs.Title,
			Video:      rs.Video,
			Prize:      rs.Prize,
			SecondClue: rs.SecondClue,
		}
		if st.Title == "" {
			st.Title = fmt.Sprintf("Stage %d", rs.ID)
		}
		if len(rs.Answers) > 0 {
			st.answers = make(map[int]string, len(rs.Answers))
			keys := make([]string, 0, len(rs.Answers))
			for k := range rs.Answers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				step, err := strconv.Atoi(k)
				if err != nil {
					return nil, &ConfigError{Field: "stages.answers", Message: fmt.Sprintf("bad step %q", k), Pos: pos}
				}
				if step > c.Steps(id) {
					return nil, &ConfigError{
						Field:   "stages.answers",
						Message: fmt.Sprintf("stage %d has %d step(s), answer given for step %d", rs.ID, c.Steps(id), step),
						Pos:     pos,
					}
				}
				st.answers[step] = rs.Answers[k]
			}
		}
		c.stages[id] = st
	}
	return c, nil
}

// formatCUEError converts CUE errors to ConfigError with position info.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	cfgErr := &ConfigError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		cfgErr.Pos = positions[0]
	}
	return cfgErr
}
