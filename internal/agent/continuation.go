package agent

import "strings"

// closingPhrases signal that an agent has nothing more to add.
var closingPhrases = []string{
	"没有补充",
	"没有更多",
	"我同意",
	"我赞同",
	"没有异议",
	"就这些",
	"nothing to add",
	"nothing further",
	"nothing more to add",
	"i agree",
	"no objection",
	"that's all",
	"that is all",
}

// WantsToContinue is the default lexical classifier: false iff the reply
// contains a closing phrase, case-insensitively.
func WantsToContinue(content string) bool {
	lowered := strings.ToLower(content)
	for _, p := range closingPhrases {
		if strings.Contains(lowered, p) {
			return false
		}
	}
	return true
}
