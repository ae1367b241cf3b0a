package taxon

import (
	"errors"
	"strconv"
	"strings"
)

// MaxBatch is the largest number of ids the remote API accepts in one call.
const MaxBatch = 30

var ErrInvalidID = errors.New("taxon id must be a positive integer")

type ID int64

// Consumer receives the resolved total for an id. It is called at most once per request and
// must not block.
type Consumer func(id ID, total int64)

func ParseID(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrInvalidID
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, ErrInvalidID
	}
	return ID(parsed), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id ID) Valid() bool {
	return id > 0
}

// Join renders ids the way the remote path segment expects them: comma separated.
func Join(ids []ID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

// Unique drops invalid and repeated ids, keeping first-seen order.
func Unique(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
