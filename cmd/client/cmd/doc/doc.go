package doc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"assistsync/internal/app/client"
	"assistsync/internal/domain/document"
)

var (
	putFile     string
	showDeleted bool
	listFormat  string
)

var DocCmd = &cobra.Command{
	Use:   "doc",
	Short: "Работа с документами локальной базы",
	Long: `Создание, просмотр и удаление документов коллекций.

Изменения записываются локально и ставятся в очередь отправки;
на сервер они попадут при следующей синхронизации.`,
}

var PutCmd = &cobra.Command{
	Use:   "put <collection> <id> [json]",
	Short: "Создать или обновить документ",
	Long: `Сохраняет документ из JSON-аргумента, файла (--file) или stdin (--file -).

Пример:
	assistsync doc put tasks t1 '{"title":"Купить молоко","status":"todo"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		raw, err := readBody(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		doc, err := parseDocument(raw)
		if err != nil {
			return err
		}

		stored, err := app.PutDocument(cmd.Context(), args[0], args[1], doc)
		if err != nil {
			return fmt.Errorf("ошибка сохранения документа: %w", err)
		}

		color.Green("✓ Документ %s/%s сохранен (clock %d)", args[0], stored.ID(), stored.LogicalClock())
		return nil
	},
}

var GetCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Показать документ",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		doc, err := app.GetDocument(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var ListCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "Список документов коллекции",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		docs, err := app.ListDocuments(cmd.Context(), args[0], showDeleted)
		if err != nil {
			return fmt.Errorf("ошибка получения списка документов: %w", err)
		}

		switch listFormat {
		case "json":
			return printJSON(docs)
		default:
			return printTable(docs)
		}
	},
}

var DeleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>",
	Short: "Пометить документ удаленным",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		if _, err := app.DeleteDocument(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("ошибка удаления документа: %w", err)
		}
		color.Yellow("✗ Документ %s/%s помечен удаленным", args[0], args[1])
		return nil
	},
}

func readBody(args []string, stdin io.Reader) ([]byte, error) {
	switch {
	case len(args) == 3:
		return []byte(args[2]), nil
	case putFile == "-":
		return io.ReadAll(stdin)
	case putFile != "":
		return os.ReadFile(putFile)
	}
	return nil, fmt.Errorf("не указано содержимое документа: передайте JSON аргументом или --file")
}

func parseDocument(raw []byte) (document.Document, error) {
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("некорректный JSON документа: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("документ должен быть JSON-объектом")
	}
	return doc, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printTable(docs []document.Document) error {
	if len(docs) == 0 {
		fmt.Println("Документы не найдены")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tClock\tОбновлено\tСтатус\tПоля\t\n")
	fmt.Fprintf(w, "---\t---\t---\t---\t---\t\n")

	for _, doc := range docs {
		status := "Активен"
		if doc.IsDeleted() {
			status = "Удален"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n",
			doc.ID(),
			doc.LogicalClock(),
			doc.UpdatedAt().Local().Format("2006-01-02 15:04"),
			status,
			userFields(doc),
		)
	}

	w.Flush()
	fmt.Printf("\nВсего документов: %d\n", len(docs))
	return nil
}

// userFields перечисляет поля документа без служебных метаданных
func userFields(doc document.Document) string {
	fields := make([]string, 0, len(doc))
	for k := range doc {
		if !document.IsMetadataField(k) {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

func init() {
	PutCmd.Flags().StringVarP(&putFile, "file", "f", "", "файл с JSON документа, - для stdin")
	ListCmd.Flags().BoolVar(&showDeleted, "deleted", false, "показывать удаленные")
	ListCmd.Flags().StringVar(&listFormat, "format", "table", "формат вывода: table, json")
}
