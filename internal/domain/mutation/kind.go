package mutation

import "fmt"

// Kind тип отложенной операции. Каждый вид привязан ровно к одной
// удалённой операции сервера.
type Kind int

const (
	KindCreateStat Kind = iota
	KindCreateInvoice
	KindUpdateInvoice
	KindUpdateStat
	KindDeleteInvoice
	KindDeleteStat
)

// String возвращает строковое представление вида операции
func (k Kind) String() string {
	switch k {
	case KindCreateStat:
		return "create_stat"
	case KindCreateInvoice:
		return "create_invoice"
	case KindUpdateInvoice:
		return "update_invoice"
	case KindUpdateStat:
		return "update_stat"
	case KindDeleteInvoice:
		return "delete_invoice"
	case KindDeleteStat:
		return "delete_stat"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind разбирает строковое представление вида операции
func ParseKind(s string) (Kind, error) {
	switch s {
	case "create_stat":
		return KindCreateStat, nil
	case "create_invoice":
		return KindCreateInvoice, nil
	case "update_invoice":
		return KindUpdateInvoice, nil
	case "update_stat":
		return KindUpdateStat, nil
	case "delete_invoice":
		return KindDeleteInvoice, nil
	case "delete_stat":
		return KindDeleteStat, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// IsUpdate сообщает, проверяется ли операция на конфликты.
// Конфликты проверяются только для обновлений: создания считаются новыми
// записями, удаления идемпотентны по id.
func (k Kind) IsUpdate() bool {
	return k == KindUpdateInvoice || k == KindUpdateStat
}

// Table возвращает таблицу сервера, к которой относится операция
func (k Kind) Table() string {
	switch k {
	case KindCreateInvoice, KindUpdateInvoice, KindDeleteInvoice:
		return "invoices"
	case KindCreateStat, KindUpdateStat, KindDeleteStat:
		return "stats"
	default:
		return ""
	}
}
