package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marminbh/automation-svc/internal/handlers"
	"github.com/marminbh/automation-svc/internal/models"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func rulesImportCmd() *cobra.Command {
	var (
		owner  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Create rules from a YAML file",
		Long: `Create rules from a YAML file. The file holds either a list of rules or a
mapping with a "rules" list. Every rule is validated before any is saved.

Examples:
  automationctl rules import onboarding.yaml --owner 682c5990bf4a775c8de9598a
  automationctl rules import onboarding.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			rules, err := parseRules(data, owner)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d rules valid, nothing saved\n", len(rules))
				return nil
			}

			svc, cleanup, err := openService(false)
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := importRules(cmd.Context(), svc.Store, rules)
			for _, r := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %q\n", r.ID, r.Name)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner for rules that do not name one")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}

// parseRules decodes and validates a rule file. YAML is converted to JSON
// first so rules decode exactly as they do over the API.
func parseRules(data []byte, owner string) ([]*models.Rule, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	entries, ok := doc.([]any)
	if m, isMap := doc.(map[string]any); isMap {
		entries, ok = m["rules"].([]any)
	}
	if !ok {
		return nil, fmt.Errorf("expected a list of rules")
	}

	rules := make([]*models.Rule, 0, len(entries))
	for i, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		var req handlers.RuleRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if req.OwnerID == "" {
			req.OwnerID = owner
		}
		rule := req.NewRule()
		if err := models.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rules[%d] %q: %w", i, rule.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type ruleCreator interface {
	CreateRule(ctx context.Context, rule *models.Rule) error
}

// importRules saves rules in order and stops at the first failure
func importRules(ctx context.Context, st ruleCreator, rules []*models.Rule) ([]*models.Rule, error) {
	created := make([]*models.Rule, 0, len(rules))
	for _, r := range rules {
		if err := st.CreateRule(ctx, r); err != nil {
			return created, fmt.Errorf("failed to create rule %q: %w", r.Name, err)
		}
		created = append(created, r)
	}
	return created, nil
}
