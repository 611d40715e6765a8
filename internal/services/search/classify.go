package search

import (
	"regexp"
	"strings"

	"github.com/BearBump/ScanDock/internal/models"
)

var (
	reAllDigits = regexp.MustCompile(`^[0-9]+$`)
	// Известные префиксы перевозчиков, дальше могут идти любые word-символы.
	reCarrierPrefix = regexp.MustCompile(`(?i)^(TBADD|FEDEX|SPXMIA|420331|TBA|UPS|FDX|DHL|USPS|1Z|GF)\w*$`)
	reAlphaNum      = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	reHasLetter     = regexp.MustCompile(`[A-Za-z]`)
)

// Classify определяет вид поискового запроса: трек-номер, имя клиента
// или "непонятно" (mixed). Правила проверяются по порядку, побеждает первое.
// Чистая функция, без побочных эффектов.
func Classify(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return models.SearchKindMixed
	}

	if reAllDigits.MatchString(q) {
		if len(q) >= 10 {
			return models.SearchKindTracking
		}
		if len(q) >= 6 {
			// 6-9 цифр: может быть и хвост трека, и casillero — пробуем оба пути.
			return models.SearchKindMixed
		}
	}

	if reCarrierPrefix.MatchString(q) {
		return models.SearchKindTracking
	}

	if len(q) <= 4 && reAlphaNum.MatchString(q) {
		return models.SearchKindTracking
	}

	if len(q) > 4 && reHasLetter.MatchString(q) {
		return models.SearchKindClient
	}

	return models.SearchKindMixed
}
