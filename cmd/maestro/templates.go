package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage workflow templates",
	Long: `Manage the registry of named workflow templates.

Templates are YAML files stored under the user config directory. Registered
templates can be run by name with 'maestro run <name>'.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := template.NewStore(config.TemplatesDir())
		if err != nil {
			return err
		}

		templates := reg.List()
		if len(templates) == 0 {
			fmt.Println("No templates registered. Add one with 'maestro templates add <file>'.")
			return nil
		}

		fmt.Printf("%-24s %-6s %s\n", "NAME", "STEPS", "DESCRIPTION")
		for _, t := range templates {
			fmt.Printf("%-24s %-6d %s\n", t.Name, len(t.Steps), t.Description)
		}
		return nil
	},
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register a workflow file as a named template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := template.ParseFile(args[0])
		if err != nil {
			return err
		}

		reg, err := template.NewStore(config.TemplatesDir())
		if err != nil {
			return err
		}
		if err := reg.Save(tmpl); err != nil {
			return err
		}

		fmt.Printf("Registered template %q (%d steps).\n", tmpl.Name, len(tmpl.Steps))
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a template's steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := template.NewStore(config.TemplatesDir())
		if err != nil {
			return err
		}
		tmpl, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Template: %s\n", tmpl.Name)
		if tmpl.Description != "" {
			fmt.Printf("  %s\n", tmpl.Description)
		}
		fmt.Println()
		for _, s := range tmpl.Steps {
			fmt.Printf("  %-20s agent=%s", s.ID, s.AgentID)
			if len(s.DependsOn) > 0 {
				fmt.Printf(" depends_on=%v", s.DependsOn)
			}
			fmt.Println()
			fmt.Printf("    %s\n", s.TaskText)
		}
		return nil
	},
}

var templatesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := template.NewStore(config.TemplatesDir())
		if err != nil {
			return err
		}
		if err := reg.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed template %q.\n", args[0])
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesAddCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesRemoveCmd)
}
