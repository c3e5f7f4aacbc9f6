package cache

import "strings"

const (
	minuteIndexPrefix = "series:1m:"
	snapshotPrefix    = "series:data:"
)

// MinuteIndexKey 格式：series:1m:{marketId}:{stockCode}
func MinuteIndexKey(stockCode, marketID string) string {
	return minuteIndexPrefix + strings.TrimSpace(marketID) + ":" + strings.TrimSpace(stockCode)
}

// SnapshotKey 格式：series:data:{stockCode}:{marketId}
func SnapshotKey(stockCode, marketID string) string {
	return snapshotPrefix + strings.TrimSpace(stockCode) + ":" + strings.TrimSpace(marketID)
}
