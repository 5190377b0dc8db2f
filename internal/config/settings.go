package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/spf13/viper"
)

// Settings are the runtime options read from the environment (and an optional .env file)
type Settings struct {
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32  `mapstructure:"DB_MAX_CONNS"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	LogFormat             string `mapstructure:"LOG_FORMAT"`
	MemberPlanLookup      string `mapstructure:"COSTSHARE_MEMBER_PLAN_LOOKUP"`
	CoverageSource        string `mapstructure:"COSTSHARE_COVERAGE_SOURCE"`
	EmployeePlusEmbedding string `mapstructure:"COSTSHARE_EMPLOYEE_PLUS_EMBEDDING"`
	MigrationCutoff       string `mapstructure:"COSTSHARE_MIGRATION_CUTOFF"` // YYYY-MM-DD
}

var settingKeys = []string{
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"COSTSHARE_MEMBER_PLAN_LOOKUP",
	"COSTSHARE_COVERAGE_SOURCE",
	"COSTSHARE_EMPLOYEE_PLUS_EMBEDDING",
	"COSTSHARE_MIGRATION_CUTOFF",
}

// LoadSettings reads settings from the environment. envFile may be empty.
func LoadSettings(envFile string) (*Settings, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range settingKeys {
		_ = v.BindEnv(k)
	}

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	s.LogFormat = strings.ToLower(s.LogFormat)
	if s.LogFormat != "console" && s.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be 'console' or 'json'")
	}
	return s, nil
}

// ApplyPolicy overlays the environment's policy switches on a dataset policy
func (s *Settings) ApplyPolicy(p domain.ComputationPolicy) (domain.ComputationPolicy, error) {
	if s.MemberPlanLookup != "" {
		p.MemberPlanLookup = domain.MemberPlanLookup(s.MemberPlanLookup)
	}
	if s.CoverageSource != "" {
		p.CoverageSource = domain.CoverageSource(s.CoverageSource)
	}
	if s.EmployeePlusEmbedding != "" {
		p.EmployeePlusEmbedding = domain.EmployeePlusEmbedding(s.EmployeePlusEmbedding)
	}
	if s.MigrationCutoff != "" {
		cutoff, err := time.Parse("2006-01-02", s.MigrationCutoff)
		if err != nil {
			return p, fmt.Errorf("COSTSHARE_MIGRATION_CUTOFF: %w", err)
		}
		p.MigrationCutoff = &cutoff
	}
	if err := ValidatePolicy(&p); err != nil {
		return p, err
	}
	return p, nil
}
