package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fms-alerts/internal/notification/template"
)

var templatesEnglishOnly bool

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List alert type to template mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		resolver := template.NewResolver(template.FromAlertsConfig(cfg.Alerts))
		list := resolver.Templates()
		if templatesEnglishOnly {
			list = resolver.EnglishTemplates()
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), list)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ALERT TYPE\tTEMPLATE\tLANGUAGE\tPRIORITY")
		for _, t := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.AlertType, t.TemplateCode, t.Language, t.Priority)
		}
		return tw.Flush()
	},
}

func init() {
	templatesCmd.Flags().BoolVar(&templatesEnglishOnly, "english", false, "only templates with the English suffix")
}
