package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"assistsync/internal/app/client"
	"assistsync/internal/domain/health"
)

var statusJSON bool

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние очереди, предохранителей и контрольных точек",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		status, err := app.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка получения статуса: %w", err)
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		}

		fmt.Println("=== Статус синхронизации ===")
		fmt.Printf("Устройство: %s\n", status.DeviceID)
		fmt.Printf("Логические часы: %d\n", status.Clock)
		fmt.Printf("Удаленное хранилище: %s\n\n", status.RemoteMode)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Коллекция\tНаправление\tСтратегия\tCheckpoint\tОчередь\tНедоставлено\tПредохранитель\t\n")
		fmt.Fprintf(w, "---\t---\t---\t---\t---\t---\t---\t\n")
		for _, c := range status.Collections {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t\n",
				c.Name,
				c.Direction,
				c.Strategy,
				c.Checkpoint,
				c.Queue.Depth,
				c.Queue.Dead,
				breakerLabel(c.Health.State),
			)
		}
		w.Flush()

		fmt.Printf("\n🌐 Соединение с сервером: ")
		if err := app.CheckConnection(cmd.Context()); err != nil {
			color.Red("❌ Ошибка: %v", err)
		} else {
			color.Green("✅ OK")
		}

		return nil
	},
}

func breakerLabel(state health.State) string {
	switch state {
	case health.Open:
		return color.RedString(string(state))
	case health.HalfOpen:
		return color.YellowString(string(state))
	}
	return color.GreenString(string(state))
}

func init() {
	StatusCmd.Flags().BoolVar(&statusJSON, "json", false, "вывод в формате JSON")
}
