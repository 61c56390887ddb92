package student

import (
	"strings"

	"github.com/samber/lo"
)

const (
	remarksSep = "|"
	labelsSep  = ","
)

// EncodeRemarks stores free text and checkbox labels in one column as "text|label1,label2".
func EncodeRemarks(text string, labels []string) string {
	if text == "" && len(labels) == 0 {
		return ""
	}
	return text + remarksSep + strings.Join(labels, labelsSep)
}

// ParseRemarks reverses EncodeRemarks. Values without a separator are plain text.
func ParseRemarks(s string) (string, []string) {
	i := strings.LastIndex(s, remarksSep)
	if i < 0 {
		return s, nil
	}
	labels := lo.Filter(strings.Split(s[i+1:], labelsSep), func(l string, _ int) bool { return l != "" })
	if len(labels) == 0 {
		labels = nil
	}
	return s[:i], labels
}
