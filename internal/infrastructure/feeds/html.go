package feeds

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanHTML strips markup from a feed description and collapses whitespace.
func CleanHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// linkHash is the fallback local id of entries without a GUID.
func linkHash(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])[:12]
}
