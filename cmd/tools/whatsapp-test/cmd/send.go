package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fms-alerts/internal/bootstrap"
	"fms-alerts/internal/models"
	"fms-alerts/internal/pipeline"
)

var (
	sendVehicleID string
	sendDirect    bool
)

var sendCmd = &cobra.Command{
	Use:   "send <alert_type> <phone>",
	Short: "Store a sample alert and queue or send it",
	Long: `Create a diagnostic alert and message for alert_type and deliver it to phone.

Without --direct the message is queued for the delivery workers of a running
alert-service. With --direct a single attempt is made from this process and
the provider response is printed. Unmapped alert types use the plain-text
fallback.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		zapLog := newLogger()
		defer zapLog.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		app, err := bootstrap.New(ctx, cfg, zapLog, bootstrap.Options{
			ServiceName:  "whatsapp-test",
			ConnRetries:  2,
			InitialDelay: 500 * time.Millisecond,
		})
		if err != nil {
			return err
		}
		defer app.Close()

		req := pipeline.DiagnosticRequest{
			AlertType: args[0],
			Phone:     args[1],
			VehicleID: sendVehicleID,
			Direct:    sendDirect,
		}
		res, err := app.Pipeline.Diagnose(ctx, req)
		if err != nil {
			printErr("send failed: %v", err)
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printSendResult(cmd.OutOrStdout(), req, res)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendVehicleID, "vehicle-id", pipeline.DefaultDiagnosticVehicle, "vehicle id for the sample alert")
	sendCmd.Flags().BoolVar(&sendDirect, "direct", false, "send now instead of queueing")
}

func printSendResult(w io.Writer, req pipeline.DiagnosticRequest, res *pipeline.DiagnosticResult) {
	fmt.Fprintln(w, "Testing WhatsApp alert:")
	fmt.Fprintf(w, "- Alert Type: %s\n", req.AlertType)
	fmt.Fprintf(w, "- Template: %s\n", res.TemplateCode)
	fmt.Fprintf(w, "- Phone: %s\n", req.Phone)
	fmt.Fprintf(w, "- Vehicle ID: %s\n", req.VehicleID)
	fmt.Fprintf(w, "- Language: %s\n", res.Language)
	if res.PlainText {
		fmt.Fprintf(w, "- Text: %s\n", res.Text)
	} else {
		fmt.Fprintf(w, "- Placeholders: %s\n", strings.Join(res.Placeholders, " | "))
	}
	fmt.Fprintf(w, "- Alert ID: %d, Message ID: %d\n", res.AlertID, res.MessageID)

	if !req.Direct {
		fmt.Fprintln(w, "Message queued for delivery.")
		return
	}

	d := res.Delivery
	if d == nil {
		return
	}
	if d.ProviderMessageID != "" && d.Status == models.StatusSent {
		fmt.Fprintln(w, "Message sent successfully.")
		fmt.Fprintf(w, "Provider Message ID: %s\n", d.ProviderMessageID)
		return
	}
	fmt.Fprintln(w, "Failed to send message:")
	fmt.Fprintf(w, "Status: %d\n", d.StatusCode)
	if d.Error != nil {
		fmt.Fprintf(w, "Response: %s\n", d.Error.Details)
	}
}
