// cmd/client/cmd/init.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"assistsync/cmd/client/cmd/doc"
	"assistsync/cmd/client/cmd/sync"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Инициализировать клиент assistsync",
	Long: `Команда init выполняет первоначальную настройку клиента:
	1. Создает локальную базу и идентификатор устройства
	2. Проверяет соединение с удаленным хранилищем

Без соединения клиент работает в офлайн-режиме: изменения копятся
в очереди и отправляются при следующей синхронизации.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("=== Инициализация assistsync ===")
		fmt.Println()
		fmt.Printf("Локальная база: %s\n", cfg.DataPath)
		fmt.Printf("Устройство: %s\n", app.DeviceID())
		fmt.Printf("Пользователь: %s\n", cfg.UserID)

		fmt.Println("Проверка соединения с сервером...")
		if err := app.CheckConnection(cmd.Context()); err != nil {
			fmt.Printf("⚠️  Предупреждение: не удалось подключиться к серверу: %v\n", err)
			fmt.Println("Вы можете работать в офлайн-режиме, изменения будут отправлены позже.")
		} else {
			fmt.Println("✓ Соединение с сервером установлено")
		}

		fmt.Println()
		fmt.Println("✅ Инициализация успешно завершена!")
		fmt.Println()
		fmt.Println("Что дальше:")
		fmt.Println("1. Создайте документ: assistsync doc put tasks t1 '{\"title\":\"Купить молоко\",\"status\":\"todo\"}'")
		fmt.Println("2. Синхронизируйте: assistsync sync once")
		fmt.Println("3. Запустите фоновую синхронизацию: assistsync sync run")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	sync.SyncCmd.AddCommand(sync.RunCmd)
	sync.SyncCmd.AddCommand(sync.OnceCmd)
	sync.SyncCmd.AddCommand(sync.PullCmd)
	sync.SyncCmd.AddCommand(sync.PushCmd)
	sync.SyncCmd.AddCommand(sync.StatusCmd)
	sync.SyncCmd.AddCommand(sync.ConflictsCmd)
	sync.SyncCmd.AddCommand(sync.DeadCmd)
	sync.SyncCmd.AddCommand(sync.RequeueCmd)
	sync.SyncCmd.AddCommand(sync.RecoverCmd)

	rootCmd.AddCommand(doc.DocCmd)
	doc.DocCmd.AddCommand(doc.PutCmd)
	doc.DocCmd.AddCommand(doc.GetCmd)
	doc.DocCmd.AddCommand(doc.ListCmd)
	doc.DocCmd.AddCommand(doc.DeleteCmd)
}
