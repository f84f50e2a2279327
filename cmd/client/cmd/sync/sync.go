package sync

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"assistsync/internal/app/client"
	engine "assistsync/internal/domain/sync"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Синхронизация локальной базы с удаленным хранилищем.

Цикл синхронизации сначала загружает изменения с сервера (pull),
затем отправляет очередь локальных изменений (push).`,
}

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Фоновая синхронизация до прерывания",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("Синхронизация запущена, Ctrl+C для остановки")
		return app.Run(ctx)
	},
}

var OnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Один цикл pull + push",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return printCycle("Синхронизация", app.SyncOnce(cmd.Context()))
	},
}

var PullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Только загрузить изменения с сервера",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return printCycle("Загрузка", app.Pull(cmd.Context()))
	},
}

var PushCmd = &cobra.Command{
	Use:   "push",
	Short: "Только отправить очередь изменений",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		return printCycle("Отправка", app.Push(cmd.Context()))
	},
}

func printCycle(title string, result *engine.CycleResult) error {
	fmt.Printf("=== %s ===\n", title)

	names := make([]string, 0, len(result.Collections))
	for name := range result.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	var pulled, pushed, conflicts int
	for _, name := range names {
		r := result.Collections[name]
		pulled += r.Pulled
		pushed += r.Pushed
		conflicts += r.Conflicts

		switch {
		case r.Err != nil:
			color.Red("  ✗ %-16s %s", name, r.Error)
		case r.Skipped:
			color.Yellow("  ⏸ %-16s пропущена: предохранитель открыт", name)
		case r.Pulled > 0 || r.Pushed > 0 || r.Conflicts > 0 || r.Dead > 0:
			fmt.Printf("  ✓ %-16s загружено %d, отправлено %d, конфликтов %d, недоставлено %d\n",
				name, r.Pulled, r.Pushed, r.Conflicts, r.Dead)
		}
	}

	fmt.Println()
	fmt.Printf("Время выполнения: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Загружено с сервера: %d документов\n", pulled)
	fmt.Printf("Отправлено на сервер: %d документов\n", pushed)
	if conflicts > 0 {
		fmt.Printf("Разрешено конфликтов: %d\n", conflicts)
		fmt.Println("   Используйте 'assistsync sync conflicts' для просмотра")
	}

	if err := result.Err(); err != nil {
		return fmt.Errorf("синхронизация завершилась с ошибками: %w", err)
	}
	color.Green("✅ Готово")
	return nil
}
