package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/pdp"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pdp-config - Configuration tool for the policy decision engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pdp-config convert <input> <output>                 - Convert between YAML and JSON")
	fmt.Println("  pdp-config validate <file>                          - Validate configuration")
	fmt.Println("  pdp-config stats <file>                             - Show configuration statistics")
	fmt.Println("  pdp-config check <file> <subject> <resource> <action> - Evaluate one request against the config")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: pdp-config convert <input> <output>")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])

	out := os.Args[3]
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(out)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		fmt.Printf("Unsupported output format: %s\n", filepath.Ext(out))
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error encoding config: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], out)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pdp-config validate <file>")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])

	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Println("Configuration has problems:")
		for _, issue := range issues {
			fmt.Printf("  - %s\n", issue)
		}
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Version:  %d\n", cfg.Version)
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
	fmt.Printf("  Roles:    %d\n", len(cfg.Roles))
	fmt.Printf("  Grants:   %d\n", len(cfg.Grants))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pdp-config stats <file>")
		os.Exit(1)
	}
	filename := os.Args[2]
	cfg := mustLoad(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat, err := os.Stat(filename); err == nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
	fmt.Printf("  Roles:    %d\n", len(cfg.Roles))
	fmt.Printf("  Grants:   %d\n", len(cfg.Grants))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allow, deny, disabled := 0, 0, 0
		for _, p := range cfg.Policies {
			if !p.Enabled {
				disabled++
			}
			if p.Effect == pdp.EffectAllow {
				allow++
			} else {
				deny++
			}
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow policies: %d\n", allow)
		fmt.Printf("  Deny policies:  %d\n", deny)
		fmt.Printf("  Disabled:       %d\n", disabled)
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
		}
		fmt.Println("Role Details:")
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL: %dms\n", cfg.Engine.DecisionCacheTTL)
	fmt.Printf("  Precedence:         %s\n", cfg.Engine.Precedence)
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: pdp-config check <file> <subject> <resource> <action>")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])

	engine, err := pdp.NewEngine()
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	explanation, err := engine.ExplainAccess(ctx, &pdp.AccessRequest{
		SubjectID:  os.Args[3],
		ResourceID: os.Args[4],
		Action:     os.Args[5],
	})
	if err != nil {
		fmt.Printf("Error evaluating request: %v\n", err)
		os.Exit(1)
	}

	d := explanation.Decision
	fmt.Printf("Effect:  %s\n", d.Effect)
	fmt.Printf("Policy:  %s\n", d.PolicyID)
	fmt.Printf("Reason:  %s\n", d.Reason)
	fmt.Println("Trace:")
	for _, line := range explanation.Trace {
		fmt.Printf("  %s\n", line)
	}
	if !d.Allowed() {
		os.Exit(2)
	}
}

func mustLoad(filename string) *pdp.Config {
	cfg, err := pdp.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
