package repository

import (
	"fmt"

	"hamo/backend/internal/kvstore"
)

const (
	profileSK     = "PROFILE"
	codeSK        = "CODE"
	avatarPrefix  = "AVATAR#"
	clientPrefix  = "CLIENT#"
	invitePrefix  = "INVITE#"
	chatPrefix    = "CHAT#"
	grantPrefix   = "GRANT#"
	dedupePrefix  = "DEDUPE#"
	messagePrefix = "MSG#"
	exportPrefix  = "EXPORT#"
	statusPrefix  = "STATUS#"
)

func userPK(subjectID string) string {
	return "USER#" + subjectID
}

func inviteIndexPK(code string) string {
	return invitePrefix + code
}

func statusSK(status string) string {
	return statusPrefix + status
}

func chatSK(clientID, avatarID string) string {
	return fmt.Sprintf("%s%s#%s", chatPrefix, clientID, avatarID)
}

func grantSK(clientID, avatarID string) string {
	return fmt.Sprintf("%s%s#%s", grantPrefix, clientID, avatarID)
}

// messageSK zero-pads the millisecond timestamp so bytewise order matches numeric order.
func messageSK(createdAt int64) string {
	return fmt.Sprintf("%s%013d", messagePrefix, createdAt)
}

func decodeAll[T any](items []kvstore.Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := item.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", item.PK, item.SK, err)
		}
		out = append(out, v)
	}
	return out, nil
}
