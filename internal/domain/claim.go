package domain

import "fmt"

// ClaimMode — способ, которым экземпляр воркера забирает due задания.
//
// Оба режима гарантируют, что одно due задание в один момент выбирает
// не больше одного экземпляра.
type ClaimMode string

const (
	// ClaimSkipLocked — SELECT ... FOR UPDATE SKIP LOCKED.
	// Строки, заблокированные другим экземпляром, пропускаются без ожидания.
	ClaimSkipLocked ClaimMode = "skip_locked"

	// ClaimLease — аренда строки: locked_by/locked_until пишутся в той же
	// транзакции, выбираются только строки без аренды или с истёкшей арендой.
	// Для хранилищ без SKIP LOCKED.
	ClaimLease ClaimMode = "lease"
)

// ParseClaimMode проверяет строку режима.
func ParseClaimMode(s string) (ClaimMode, error) {
	switch m := ClaimMode(s); m {
	case ClaimSkipLocked, ClaimLease:
		return m, nil
	case "":
		return ClaimSkipLocked, nil
	default:
		return "", fmt.Errorf("unknown claim mode %q", s)
	}
}
