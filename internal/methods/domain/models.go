package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Env string

const (
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

func (e Env) Valid() bool {
	return e == EnvStage || e == EnvProd
}

// CurrencyUnknown marks a GEO whose logins disagree on currency or never reported one.
const CurrencyUnknown = "—"

// ConditionsAll is rendered when a group carries no condition tag.
const ConditionsAll = "ALL"

// MethodPair identifies one method variant as returned by the backend.
// On the wire it is a two-element array: [title, name].
type MethodPair struct {
	Title string
	Name  string
}

func (p MethodPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Title, p.Name})
}

// UnmarshalJSON never fails: null, short or non-array entries decode as an
// empty pair and are dropped by the collector.
func (p *MethodPair) UnmarshalJSON(data []byte) error {
	*p = MethodPair{}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if len(raw) > 0 {
		p.Title = stringValue(raw[0])
	}
	if len(raw) > 1 {
		p.Name = stringValue(raw[1])
	}
	return nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// MinDepositMapItem is the {title,name,min_deposit} wire shape.
type MinDepositMapItem struct {
	Title      string `json:"title"`
	Name       string `json:"name"`
	MinDeposit any    `json:"min_deposit"`
}

func (m *MinDepositMapItem) UnmarshalJSON(data []byte) error {
	*m = MinDepositMapItem{}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	m.Title = stringValue(raw["title"])
	m.Name = stringValue(raw["name"])
	m.MinDeposit = raw["min_deposit"]
	return nil
}

// LegacyMinDeposit is the {Title,Name,MinDeposit} wire shape.
type LegacyMinDeposit struct {
	Title      string `json:"Title"`
	Name       string `json:"Name"`
	MinDeposit any    `json:"MinDeposit"`
}

func (m *LegacyMinDeposit) UnmarshalJSON(data []byte) error {
	*m = LegacyMinDeposit{}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	m.Title = stringValue(raw["Title"])
	m.Name = stringValue(raw["Name"])
	m.MinDeposit = raw["MinDeposit"]
	return nil
}

// LoginMethods is the per-login method fetch response.
type LoginMethods struct {
	Success            bool                `json:"success"`
	Error              string              `json:"error,omitempty"`
	DepositMethods     []MethodPair        `json:"deposit_methods"`
	WithdrawMethods    []MethodPair        `json:"withdraw_methods"`
	RecommendedMethods []MethodPair        `json:"recommended_methods"`
	MinDepositByKey    map[string]any      `json:"min_deposit_by_key,omitempty"`
	MinDepositMap      []MinDepositMapItem `json:"min_deposit_map,omitempty"`
	MinDeposits        []LegacyMinDeposit  `json:"min_deposits,omitempty"`
}

// AuthCheck is the per-login auth/currency check response.
type AuthCheck struct {
	Success      bool   `json:"success"`
	Currency     string `json:"currency,omitempty"`
	DepositCount *int   `json:"deposit_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

type MinDepositShape string

const (
	MinDepositShapeByKey  MinDepositShape = "by_key"
	MinDepositShapeMap    MinDepositShape = "map"
	MinDepositShapeLegacy MinDepositShape = "legacy"
)

// MinDepositEntry is one already-parsed minimum deposit observation.
type MinDepositEntry struct {
	Title string
	Name  string
	Value float64
}

// MinDepositPayload is one min-deposit source of a login, tagged by its wire shape.
type MinDepositPayload struct {
	Shape   MinDepositShape
	Entries []MinDepositEntry
}

type Provenance string

const (
	ProvenanceAPI       Provenance = "api"
	ProvenanceHardcoded Provenance = "hardcoded"
	ProvenanceTemp      Provenance = "temp"
	ProvenanceDerived   Provenance = "derived"
)

// MethodGroup aggregates every variant of one canonical title.
type MethodGroup struct {
	Title         string     `json:"title"`
	Names         []string   `json:"names"`
	Conditions    []string   `json:"conditions"`
	HasDeposit    bool       `json:"has_deposit"`
	HasWithdraw   bool       `json:"has_withdraw"`
	IsRecommended bool       `json:"is_recommended"`
	IsCrypto      bool       `json:"is_crypto"`
	Provenance    Provenance `json:"provenance"`
	Pinned        bool       `json:"pinned,omitempty"`
	DerivedFrom   string     `json:"derived_from,omitempty"`
	MinDeposit    *float64   `json:"min_deposit,omitempty"`
}

func (g *MethodGroup) IsHardcoded() bool     { return g.Provenance == ProvenanceHardcoded }
func (g *MethodGroup) IsTemp() bool          { return g.Provenance == ProvenanceTemp }
func (g *MethodGroup) IsAutoGenerated() bool { return g.Provenance == ProvenanceDerived }

// IsSynthetic reports whether the group was not returned by the backend.
func (g *MethodGroup) IsSynthetic() bool {
	return g.Provenance != "" && g.Provenance != ProvenanceAPI
}

// WithdrawOnly reports a group that can only be used for withdrawals.
func (g *MethodGroup) WithdrawOnly() bool {
	return g.HasWithdraw && !g.HasDeposit
}

// Clone returns a deep copy.
func (g *MethodGroup) Clone() *MethodGroup {
	if g == nil {
		return nil
	}
	c := *g
	c.Names = append([]string(nil), g.Names...)
	c.Conditions = append([]string(nil), g.Conditions...)
	if g.MinDeposit != nil {
		v := *g.MinDeposit
		c.MinDeposit = &v
	}
	return &c
}

// GeoAggregate is the merged, per-GEO view of every contributing login.
type GeoAggregate struct {
	Geo             string                  `json:"geo"`
	Currency        string                  `json:"currency"`
	Groups          map[string]*MethodGroup `json:"groups"`
	OriginalOrder   []string                `json:"original_order"`
	MinDepositIndex map[string]float64      `json:"min_deposit_index"`
}

// Clone returns a deep copy so later stages never mutate a published aggregate.
func (a *GeoAggregate) Clone() *GeoAggregate {
	if a == nil {
		return nil
	}
	c := &GeoAggregate{
		Geo:             a.Geo,
		Currency:        a.Currency,
		Groups:          make(map[string]*MethodGroup, len(a.Groups)),
		OriginalOrder:   append([]string(nil), a.OriginalOrder...),
		MinDepositIndex: make(map[string]float64, len(a.MinDepositIndex)),
	}
	for k, g := range a.Groups {
		c.Groups[k] = g.Clone()
	}
	for k, v := range a.MinDepositIndex {
		c.MinDepositIndex[k] = v
	}
	return c
}

// LoginContribution is what one login fed into a run; kept so failed logins
// can be retried and the GEO rebuilt from scratch.
type LoginContribution struct {
	Login    string        `json:"login"`
	Methods  *LoginMethods `json:"methods,omitempty"`
	Currency string        `json:"currency,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (c LoginContribution) Failed() bool {
	return c.Error != ""
}

type LoginFailure struct {
	Geo    string `json:"geo"`
	Login  string `json:"login"`
	Reason string `json:"reason"`
}

// LoadResult is the outcome of one load run and the only hand-off between
// aggregation and export.
type LoadResult struct {
	RunID         snowflake.ID                   `json:"run_id"`
	ParentRunID   snowflake.ID                   `json:"parent_run_id,omitempty"`
	Project       string                         `json:"project"`
	Env           Env                            `json:"env"`
	Scope         string                         `json:"scope"`
	FullProject   bool                           `json:"full_project"`
	AddHardcoded  bool                           `json:"add_hardcoded"`
	Geos          []string                       `json:"geos"`
	Aggregates    map[string]*GeoAggregate       `json:"aggregates"`
	Contributions map[string][]LoginContribution `json:"contributions"`
	Failures      []LoginFailure                 `json:"failures"`
	// Policy is the policy snapshot the run was aggregated with; views and
	// retries of the run reuse it.
	Policy        json.RawMessage                `json:"policy,omitempty"`
	StartedAt     time.Time                      `json:"started_at"`
	CompletedAt   time.Time                      `json:"completed_at"`
}

const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// Status is ok without failures, failed when every login failed, and
// partial otherwise.
func (r *LoadResult) Status() string {
	if len(r.Failures) == 0 {
		return RunStatusOK
	}
	total := 0
	for _, contributions := range r.Contributions {
		total += len(contributions)
	}
	if len(r.Failures) >= total {
		return RunStatusFailed
	}
	return RunStatusPartial
}

// ScopeKey identifies the state slot a run publishes into.
func ScopeKey(project string, env Env, geo string, fullProject bool) string {
	if fullProject || geo == "" {
		geo = "*"
	}
	return project + "|" + string(env) + "|" + geo
}
