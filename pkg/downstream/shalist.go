// Package downstream answers whether a merged pull request has made it into
// a downstream build, delegating the ancestry computation to the code host's
// compare API.
package downstream

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseShaList parses a down-sha.log: tab-separated lines of
// <sha>\t<tag>\t<org/repo>, one per published component, into a repository
// to published-sha association. Malformed lines are skipped. The association
// is built fresh per invocation and never persisted.
func ParseShaList(data string, logger *logrus.Entry) map[string]string {
	shas := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 || fields[0] == "" || fields[2] == "" {
			logger.WithField("line", line).Warn("Skipping malformed sha list line.")
			continue
		}
		shas[strings.TrimSpace(fields[2])] = strings.TrimSpace(fields[0])
	}
	return shas
}
