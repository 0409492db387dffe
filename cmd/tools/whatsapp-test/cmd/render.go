package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/notification/template"
	"fms-alerts/internal/pipeline"
)

var renderVehicleID string

var renderCmd = &cobra.Command{
	Use:   "render <alert_type>",
	Short: "Print the placeholders or fallback text for a sample alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		svc := pipeline.NewService(
			pipeline.Config{PlainTextFallback: true, SpeedLimit: cfg.Alerts.SpeedLimit},
			template.NewResolver(template.FromAlertsConfig(cfg.Alerts)),
			nil, nil, nil,
			logger.NewZapAdapter(newLogger()),
		)
		msg, fields := svc.Preview(pipeline.DiagnosticRequest{AlertType: args[0], VehicleID: renderVehicleID})

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"template":     msg.TemplateCode,
				"language":     msg.Language,
				"kind":         msg.Kind(),
				"placeholders": msg.Placeholders,
				"text":         msg.Text,
				"fields":       fields,
			})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Template: %s (%s)\n", msg.TemplateCode, msg.Language)
		if msg.IsPlainText() {
			fmt.Fprintf(w, "Text: %s\n", msg.Text)
			return nil
		}
		for i, p := range msg.Placeholders {
			fmt.Fprintf(w, "{{%d}} %s\n", i+1, p)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderVehicleID, "vehicle-id", pipeline.DefaultDiagnosticVehicle, "vehicle id for the sample alert")
}
