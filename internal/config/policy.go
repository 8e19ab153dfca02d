package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/paymatrix/internal/methods/engine"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PolicyConfig is the operator-editable part of the ranking and injection
// policy, read from policy.yml under the "policy" key.
type PolicyConfig struct {
	Aliases            []AliasConfig     `mapstructure:"aliases"`
	SpecialBrands      []string          `mapstructure:"specialBrands"`
	Hardcoded          []HardcodedConfig `mapstructure:"hardcoded"`
	HardcodedEnabled   bool              `mapstructure:"hardcodedEnabled"`
	TempMethodsEnabled bool              `mapstructure:"tempMethodsEnabled"`
	DeriveSiblings     bool              `mapstructure:"deriveSiblings"`
	Sibling            SiblingConfig     `mapstructure:"sibling"`
	PinnedPosition     int               `mapstructure:"pinnedPosition"`
	EuroGeo            EuroGeoConfig     `mapstructure:"euroGeo"`
}

type AliasConfig struct {
	Name    string   `mapstructure:"name"`
	From    []string `mapstructure:"from"`
	To      string   `mapstructure:"to"`
	Enabled bool     `mapstructure:"enabled"`
}

type HardcodedConfig struct {
	Title       string   `mapstructure:"title"`
	Name        string   `mapstructure:"name"`
	GeoPrefixes []string `mapstructure:"geoPrefixes"`
	EuroOnly    bool     `mapstructure:"euroOnly"`
	Recommended bool     `mapstructure:"recommended"`
	Deposit     bool     `mapstructure:"deposit"`
	Withdraw    bool     `mapstructure:"withdraw"`
	Condition   string   `mapstructure:"condition"`
	MinDeposit  float64  `mapstructure:"minDeposit"`
	Pinned      bool     `mapstructure:"pinned"`
	Temp        bool     `mapstructure:"temp"`
}

type SiblingConfig struct {
	SourceToken         string `mapstructure:"sourceToken"`
	TargetToken         string `mapstructure:"targetToken"`
	DisqualifyingMarker string `mapstructure:"disqualifyingMarker"`
}

type EuroGeoConfig struct {
	CountryPrefixes []string `mapstructure:"countryPrefixes"`
	LocalCurrencies []string `mapstructure:"localCurrencies"`
}

func DefaultPolicyConfig() PolicyConfig {
	p := engine.DefaultPolicy()
	rule := engine.DefaultEuroGeoRule()

	cfg := PolicyConfig{
		SpecialBrands:      append([]string(nil), p.SpecialBrands...),
		HardcodedEnabled:   p.HardcodedEnabled,
		TempMethodsEnabled: p.TempMethodsEnabled,
		DeriveSiblings:     p.DeriveSiblings,
		Sibling: SiblingConfig{
			SourceToken:         p.Sibling.SourceToken,
			TargetToken:         p.Sibling.TargetToken,
			DisqualifyingMarker: p.Sibling.DisqualifyingMarker,
		},
		PinnedPosition: p.PinnedPosition,
		EuroGeo: EuroGeoConfig{
			CountryPrefixes: rule.CountryPrefixes,
			LocalCurrencies: rule.LocalCurrencies,
		},
	}
	for _, r := range engine.DefaultAliasRules() {
		cfg.Aliases = append(cfg.Aliases, AliasConfig{Name: r.Name, From: r.From, To: r.To, Enabled: r.Enabled})
	}
	for _, m := range p.Hardcoded {
		cfg.Hardcoded = append(cfg.Hardcoded, HardcodedConfig{
			Title:       m.Title,
			Name:        m.Name,
			GeoPrefixes: m.GeoPrefixes,
			EuroOnly:    m.EuroOnly,
			Recommended: m.Recommended,
			Deposit:     m.Deposit,
			Withdraw:    m.Withdraw,
			Condition:   m.Condition,
			MinDeposit:  m.MinDeposit,
			Pinned:      m.Pinned,
			Temp:        m.Temp,
		})
	}
	return cfg
}

// ToEngine converts the snapshot into the policy a run works with.
func (c PolicyConfig) ToEngine() engine.Policy {
	rules := make([]engine.AliasRule, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		rules = append(rules, engine.AliasRule{Name: a.Name, From: a.From, To: a.To, Enabled: a.Enabled})
	}
	hardcoded := make([]engine.HardcodedMethod, 0, len(c.Hardcoded))
	for _, h := range c.Hardcoded {
		hardcoded = append(hardcoded, engine.HardcodedMethod{
			Title:       h.Title,
			Name:        h.Name,
			GeoPrefixes: h.GeoPrefixes,
			EuroOnly:    h.EuroOnly,
			Recommended: h.Recommended,
			Deposit:     h.Deposit,
			Withdraw:    h.Withdraw,
			Condition:   h.Condition,
			MinDeposit:  h.MinDeposit,
			Pinned:      h.Pinned,
			Temp:        h.Temp,
		})
	}
	return engine.Policy{
		Aliases:            engine.NewAliasTable(rules),
		SpecialBrands:      append([]string(nil), c.SpecialBrands...),
		Hardcoded:          hardcoded,
		HardcodedEnabled:   c.HardcodedEnabled,
		TempMethodsEnabled: c.TempMethodsEnabled,
		DeriveSiblings:     c.DeriveSiblings,
		Sibling: engine.SiblingRule{
			SourceToken:         c.Sibling.SourceToken,
			TargetToken:         c.Sibling.TargetToken,
			DisqualifyingMarker: c.Sibling.DisqualifyingMarker,
		},
		PinnedPosition: c.PinnedPosition,
		EuroGeo: engine.DefaultEuroGeo(engine.EuroGeoRule{
			CountryPrefixes: c.EuroGeo.CountryPrefixes,
			LocalCurrencies: c.EuroGeo.LocalCurrencies,
		}),
	}
}

type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewPolicyHolder reads policy.yml from the usual locations, falling back to
// the built-in defaults, and reloads it whenever the file changes.
func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paymatrix/config")
	v.AddConfigPath("/etc/paymatrix")
	v.AddConfigPath(".")

	return newPolicyHolder(v, log)
}

// NewPolicyHolderFromFile is NewPolicyHolder for an explicit path.
func NewPolicyHolderFromFile(path string, log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newPolicyHolder(v, log)
}

// NewStaticPolicyHolder holds a fixed snapshot and never reloads.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func newPolicyHolder(v *viper.Viper, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("policy-config")

	v.SetEnvPrefix("PAYMATRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPolicyDefaults(v, DefaultPolicyConfig())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		log.Info("policy file not found, using defaults")
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePolicy(v)
			if err != nil {
				log.Warn("policy reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.Set(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

// Set swaps the current snapshot. Runs already started keep theirs.
func (h *PolicyHolder) Set(cfg PolicyConfig) {
	h.current.Store(cfg)
}

func setPolicyDefaults(v *viper.Viper, d PolicyConfig) {
	v.SetDefault("policy.aliases", d.Aliases)
	v.SetDefault("policy.specialBrands", d.SpecialBrands)
	v.SetDefault("policy.hardcoded", d.Hardcoded)
	v.SetDefault("policy.hardcodedEnabled", d.HardcodedEnabled)
	v.SetDefault("policy.tempMethodsEnabled", d.TempMethodsEnabled)
	v.SetDefault("policy.deriveSiblings", d.DeriveSiblings)
	v.SetDefault("policy.sibling.sourceToken", d.Sibling.SourceToken)
	v.SetDefault("policy.sibling.targetToken", d.Sibling.TargetToken)
	v.SetDefault("policy.sibling.disqualifyingMarker", d.Sibling.DisqualifyingMarker)
	v.SetDefault("policy.pinnedPosition", d.PinnedPosition)
	v.SetDefault("policy.euroGeo.countryPrefixes", d.EuroGeo.CountryPrefixes)
	v.SetDefault("policy.euroGeo.localCurrencies", d.EuroGeo.LocalCurrencies)
}

func decodePolicy(v *viper.Viper) (PolicyConfig, error) {
	// Unmarshal walks every known key, so a file that sets only part of the
	// policy still inherits the remaining defaults.
	var wrapper struct {
		Policy PolicyConfig `mapstructure:"policy"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return PolicyConfig{}, err
	}
	if err := validatePolicy(wrapper.Policy); err != nil {
		return PolicyConfig{}, err
	}
	return wrapper.Policy, nil
}

func validatePolicy(cfg PolicyConfig) error {
	if cfg.PinnedPosition < 0 {
		return errors.New("policy.pinnedPosition cannot be negative")
	}
	for i, h := range cfg.Hardcoded {
		if strings.TrimSpace(h.Title) == "" || strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("policy.hardcoded[%d]: title and name are required", i)
		}
		if !h.EuroOnly && len(h.GeoPrefixes) == 0 {
			return fmt.Errorf("policy.hardcoded[%d]: geoPrefixes or euroOnly is required", i)
		}
		if h.MinDeposit < 0 {
			return fmt.Errorf("policy.hardcoded[%d]: minDeposit cannot be negative", i)
		}
	}
	return nil
}
