package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionTokenKey returns the cache key mapping a session token ID to its row.
func (r *CacheKeyStruct) SessionTokenKey(tokenID string) string {
	return fmt.Sprintf("session:%s", tokenID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptViolationCountKey returns the cache key for an attempt's violation counter.
func (r *CacheKeyStruct) AttemptViolationCountKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:violations", attemptID)
}

// ExamMetadataKey returns the cache key for an exam's scoring metadata.
func (r *CacheKeyStruct) ExamMetadataKey(examID string) string {
	return fmt.Sprintf("exam:%s:metadata", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel for an exam's proctor feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// SlotGenerationKey returns the cache key for a slot batch generation counter.
func (r *CacheKeyStruct) SlotGenerationKey(attemptID, channel string) string {
	return fmt.Sprintf("attempt:%s:slots:%s:generation", attemptID, channel)
}

var CacheKey = NewCacheKeyStruct()
