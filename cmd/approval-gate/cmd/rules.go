package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/approvalgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/approvalgate/internal/config"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective rule sets",
	Long: `Load the configuration and print the rule sets the gateway would use,
after defaults and environment overrides, as YAML.

CEL conditions are compiled first, so a broken expression is reported
here instead of at startup.`,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&devMode, "dev", false, "apply development defaults before printing")
	rootCmd.AddCommand(rulesCmd)
}

// effectiveRules is the YAML view printed by the rules command.
type effectiveRules struct {
	Deny  ruleStage `yaml:"deny"`
	Allow ruleStage `yaml:"allow"`
}

type ruleStage struct {
	Methods       []string            `yaml:"methods"`
	PathFragments []string            `yaml:"path_fragments"`
	QueryParams   map[string]string   `yaml:"query_params,omitempty"`
	MethodPath    map[string][]string `yaml:"method_path_fragments,omitempty"`
	Conditions    []conditionView     `yaml:"conditions,omitempty"`
}

type conditionView struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	rules, err := buildRules(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}

	spec := rules.Spec()
	out := effectiveRules{
		Deny: ruleStage{
			Methods:       spec.DenyMethods,
			PathFragments: spec.DenyPathFragments,
			QueryParams:   spec.DenyQueryParams,
			Conditions:    conditionViews(cfg.Rules.DenyConditions),
		},
		Allow: ruleStage{
			Methods:       spec.AllowMethods,
			PathFragments: spec.AllowPathFragments,
			MethodPath:    spec.AllowMethodPath,
			Conditions:    conditionViews(cfg.Rules.AllowConditions),
		},
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return enc.Close()
}

func conditionViews(conds []config.ConditionConfig) []conditionView {
	views := make([]conditionView, 0, len(conds))
	for _, c := range conds {
		views = append(views, conditionView{Name: c.Name, Expression: c.Expression})
	}
	return views
}

// buildRules compiles the configured CEL conditions and combines them with
// the static rule sets.
func buildRules(cfg *config.GatewayConfig, logger *slog.Logger) (*policy.Rules, error) {
	spec := cfg.RuleSpec()
	if len(cfg.Rules.DenyConditions) == 0 && len(cfg.Rules.AllowConditions) == 0 {
		return policy.NewRules(spec), nil
	}

	evaluator, err := cel.NewEvaluator(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	for _, c := range cfg.Rules.DenyConditions {
		cond, err := evaluator.NewCondition(c.Name, c.Expression)
		if err != nil {
			return nil, fmt.Errorf("deny condition %q: %w", c.Name, err)
		}
		spec.DenyConditions = append(spec.DenyConditions, cond)
	}
	for _, c := range cfg.Rules.AllowConditions {
		cond, err := evaluator.NewCondition(c.Name, c.Expression)
		if err != nil {
			return nil, fmt.Errorf("allow condition %q: %w", c.Name, err)
		}
		spec.AllowConditions = append(spec.AllowConditions, cond)
	}
	return policy.NewRules(spec), nil
}
