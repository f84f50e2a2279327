package sync

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"assistsync/internal/app/client"
	"assistsync/internal/domain/document"
)

var (
	conflictsLimit int
	deadCollection string
	recoverSince   string
)

var ConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Журнал разрешенных конфликтов",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		entries, err := app.Conflicts(cmd.Context(), conflictsLimit)
		if err != nil {
			return fmt.Errorf("ошибка чтения журнала конфликтов: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("Конфликтов не было")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s/%s  %s -> %s\n",
				e.ResolvedAt.Local().Format("2006-01-02 15:04:05"),
				e.Collection, e.DocumentID, e.Strategy, color.CyanString(string(e.Outcome)))
			for _, d := range e.Diff {
				fmt.Printf("    %s: %s → %s\n", d.Field, short(d.Local), short(d.Remote))
			}
		}
		return nil
	},
}

var DeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "Изменения, исчерпавшие попытки отправки",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		entries := app.DeadEntries(deadCollection)
		if len(entries) == 0 {
			fmt.Println("Недоставленных изменений нет")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Коллекция\tДокумент\tПопыток\tОбновлено\tОшибка\t\n")
		fmt.Fprintf(w, "---\t---\t---\t---\t---\t\n")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t\n",
				e.Collection,
				e.DocumentID,
				e.Attempt,
				e.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				truncate(e.LastError, 60),
			)
		}
		w.Flush()

		fmt.Println("\nВернуть в очередь: assistsync sync requeue <коллекция> <id>")
		return nil
	},
}

var RequeueCmd = &cobra.Command{
	Use:   "requeue <collection> <id>",
	Short: "Вернуть недоставленное изменение в очередь",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		if err := app.Requeue(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("ошибка возврата в очередь: %w", err)
		}
		color.Green("✓ %s/%s возвращен в очередь", args[0], args[1])
		return nil
	},
}

var RecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Поставить в очередь локальные изменения, отсутствующие в ней",
	Long: `Находит документы, измененные локально после --since, и ставит в очередь
те из них, которых в очереди нет. Полезно после сбоя или ручной правки базы.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		since, err := parseSince(recoverSince)
		if err != nil {
			return err
		}

		count, err := app.Recover(cmd.Context(), since)
		if err != nil {
			return fmt.Errorf("ошибка восстановления очереди: %w", err)
		}
		fmt.Printf("Поставлено в очередь: %d документов\n", count)
		return nil
	},
}

// parseSince принимает длительность (24h) или момент времени RFC3339
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	if t := document.ParseTime(s); !t.IsZero() {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("некорректное значение --since: %q", s)
}

func short(v any) string {
	return truncate(fmt.Sprint(v), 40)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func init() {
	ConflictsCmd.Flags().IntVarP(&conflictsLimit, "limit", "n", 20, "количество записей")
	DeadCmd.Flags().StringVarP(&deadCollection, "collection", "c", "", "фильтр по коллекции")
	RecoverCmd.Flags().StringVar(&recoverSince, "since", "24h", "длительность или время RFC3339")
}
