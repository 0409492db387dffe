// Command whatsapp-test sends and previews diagnostic WhatsApp alerts.
package main

import (
	"os"

	"fms-alerts/cmd/tools/whatsapp-test/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
