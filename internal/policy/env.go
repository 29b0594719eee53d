package policy

import (
	"sort"
	"strings"
)

// hostSecrets are host variables a captured process must never see.
var hostSecrets = map[string]struct{}{
	"LOGBUF_TOKEN":      {},
	"LOGBUF_TOKEN_FILE": {},
}

// CaptureEnv strips secrets from a base environment before it is handed to a
// captured process: the host's own auth settings and any *_API_KEY or
// *_SECRET variable. It returns the sanitized env and a sorted list of
// removed keys (never values).
func CaptureEnv(baseEnv []string) (sanitized []string, removedKeys []string) {
	removed := make(map[string]struct{})
	out := make([]string, 0, len(baseEnv))

	for _, kv := range baseEnv {
		k, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isSecret(k) {
			removed[k] = struct{}{}
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(removed))
	for k := range removed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return out, keys
}

func isSecret(key string) bool {
	if _, ok := hostSecrets[key]; ok {
		return true
	}
	return strings.HasSuffix(key, "_API_KEY") || strings.HasSuffix(key, "_SECRET")
}
