package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconPolicy holds the tunable reconciliation thresholds. Values are
// read per decision, so edits to the policy file take effect without a
// restart.
type ReconPolicy struct {
	// MatchThreshold is the 0-100 confidence a candidate needs for
	// an automatic match.
	MatchThreshold int `mapstructure:"matchThreshold"`
	// CandidateFloor is the minimum score for a scored invoice to be
	// reported as a candidate at all.
	CandidateFloor int `mapstructure:"candidateFloor"`
	// HighValueCents forces assisted auto-matches above this amount
	// into review.
	HighValueCents int64 `mapstructure:"highValueCents"`
	// SimilarityFloor is the minimum embedding similarity that may
	// boost a candidate.
	SimilarityFloor float64 `mapstructure:"similarityFloor"`
	// SimilarityBoostMax caps the confidence points a similarity hit
	// can add.
	SimilarityBoostMax int `mapstructure:"similarityBoostMax"`
	// ResolverTimeout bounds calls to the assisted resolver.
	ResolverTimeout time.Duration `mapstructure:"resolverTimeout"`
}

func DefaultReconPolicy() ReconPolicy {
	return ReconPolicy{
		MatchThreshold:     80,
		CandidateFloor:     20,
		HighValueCents:     10_000_000, // R100,000
		SimilarityFloor:    0.5,
		SimilarityBoostMax: 10,
		ResolverTimeout:    10 * time.Second,
	}
}

// PolicyHolder exposes the current ReconPolicy with hot reload.
type PolicyHolder struct {
	current atomic.Value // holds ReconPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/reconcile/config")
	v.AddConfigPath("/etc/reconcile")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconPolicy()
	v.SetDefault("recon.matchThreshold", defaults.MatchThreshold)
	v.SetDefault("recon.candidateFloor", defaults.CandidateFloor)
	v.SetDefault("recon.highValueCents", defaults.HighValueCents)
	v.SetDefault("recon.similarityFloor", defaults.SimilarityFloor)
	v.SetDefault("recon.similarityBoostMax", defaults.SimilarityBoostMax)
	v.SetDefault("recon.resolverTimeout", defaults.ResolverTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ReconPolicy
	if err := v.UnmarshalKey("recon", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconPolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconPolicy
		if err := v.UnmarshalKey("recon", &updated); err != nil {
			log.Printf("[recon-policy] reload failed: %v", err)
			return
		}
		if err := validateReconPolicy(updated); err != nil {
			log.Printf("[recon-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[recon-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy.
// Used by tests and embedders that manage configuration themselves.
func NewStaticPolicyHolder(cfg ReconPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PolicyHolder) Current() ReconPolicy {
	return h.current.Load().(ReconPolicy)
}

func validateReconPolicy(cfg ReconPolicy) error {
	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 100 {
		return errors.New("recon.matchThreshold must be in (0, 100]")
	}
	if cfg.CandidateFloor < 0 || cfg.CandidateFloor > cfg.MatchThreshold {
		return errors.New("recon.candidateFloor must be in [0, matchThreshold]")
	}
	if cfg.HighValueCents <= 0 {
		return errors.New("recon.highValueCents must be positive")
	}
	if cfg.SimilarityFloor < 0 || cfg.SimilarityFloor > 1 {
		return errors.New("recon.similarityFloor must be in [0, 1]")
	}
	if cfg.SimilarityBoostMax < 0 {
		return errors.New("recon.similarityBoostMax cannot be negative")
	}
	if cfg.ResolverTimeout <= 0 {
		return errors.New("recon.resolverTimeout must be positive")
	}
	return nil
}
