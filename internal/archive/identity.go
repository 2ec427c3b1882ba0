package archive

import (
	"fmt"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/normalize"
)

const (
	hashPrefixRunes = 200
	hashLength      = 8
	methodNone      = "none"
)

// BaseID derives the content identity of an article. The same URL and raw
// text prefix always produce the same value.
func BaseID(h crawler.Hasher, date, newspaper, url, rawText string) (string, error) {
	sum, err := h.Hash([]byte(url + prefixRunes(rawText, hashPrefixRunes)))
	if err != nil {
		return "", fmt.Errorf("hash article identity: %w", err)
	}
	if len(sum) > hashLength {
		sum = sum[:hashLength]
	}
	return "article_" + date + "_" + normalize.Filename(newspaper) + "_" + sum, nil
}

// VersionID derives the identity of one correction variant of baseID.
// The language is appended only for corrected text in a non-default language.
func VersionID(baseID, method, language, defaultLanguage string) string {
	if method == "" {
		method = methodNone
	}
	id := baseID + "_" + method
	if method != methodNone && language != "" && language != defaultLanguage {
		id += "_" + language
	}
	return id
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
